package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/world"
)

const defaultAdminURL = "http://127.0.0.1:8091"

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", defaultAdminURL, "server admin base url")
	asJSON := fs.Bool("json", false, "print the decoded state as json")
	_ = fs.Parse(args)

	cl := &http.Client{Timeout: 5 * time.Second}
	var st world.Stats
	if err := adminCall(cl, http.MethodGet, adminURL(*baseURL, "state"), &st); err != nil {
		fatal("state", err)
	}
	if *asJSON {
		printJSON(st)
		return
	}
	printStats(os.Stdout, st)
}

func saveCmd(args []string) {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	baseURL := fs.String("url", defaultAdminURL, "server admin base url")
	asJSON := fs.Bool("json", false, "print the decoded result as json")
	_ = fs.Parse(args)

	cl := &http.Client{Timeout: 5 * time.Minute}
	var st world.SaveStats
	if err := adminCall(cl, http.MethodPost, adminURL(*baseURL, "save"), &st); err != nil {
		fatal("save", err)
	}
	if *asJSON {
		printJSON(st)
		return
	}
	printSaveStats(os.Stdout, st)
}

func adminURL(base, endpoint string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + "/admin/v1/" + endpoint
}

// adminCall decodes a 2xx json body into out. Error bodies carry
// {"error": "..."} or plain text.
func adminCall(cl *http.Client, method, u string, out any) error {
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return err
	}
	resp, err := cl.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s: %w", u, err)
	}
	return nil
}

func printStats(w io.Writer, st world.Stats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintf(tw, "world\t%s\n", st.WorldID)
	fmt.Fprintf(tw, "entities\t%d\n", st.Entities)
	for _, k := range sortedKeys(st.ByCategory) {
		fmt.Fprintf(tw, "  %s\t%d\n", k, st.ByCategory[k])
	}
	fmt.Fprintf(tw, "patches\t%d/%d applied\n", st.PatchesApplied, st.PatchesKnown)
	if l := st.LastLoad; !l.At.IsZero() {
		fmt.Fprintf(tw, "last load\t%s %s\t%d records\t%s\t%dms\n",
			orDash(l.SaveID), humanize.Time(l.At), l.Records, humanize.Bytes(uint64(l.Bytes)), l.Millis)
		if len(l.Migrated) > 0 {
			fmt.Fprintf(tw, "  migrated\t%v\n", l.Migrated)
		}
	} else {
		fmt.Fprintf(tw, "last load\t-\n")
	}
	if s := st.LastSave; !s.At.IsZero() {
		fmt.Fprintf(tw, "last save\t%s %s\t%d records\t%s\t%s compressed\t%dms\n",
			orDash(s.SaveID), humanize.Time(s.At), s.Records,
			humanize.Bytes(uint64(s.Bytes)), humanize.Bytes(uint64(s.CompressedBytes)), s.Millis)
	} else {
		fmt.Fprintf(tw, "last save\t-\n")
	}
}

func printSaveStats(w io.Writer, st world.SaveStats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintf(tw, "save\t%s\n", orDash(st.SaveID))
	fmt.Fprintf(tw, "dir\t%s\n", orDash(st.Dir))
	fmt.Fprintf(tw, "records\t%d\n", st.Records)
	for _, k := range sortedKeys(st.ByCategory) {
		fmt.Fprintf(tw, "  %s\t%d\n", k, st.ByCategory[k])
	}
	fmt.Fprintf(tw, "size\t%s (%s compressed)\n",
		humanize.Bytes(uint64(st.Bytes)), humanize.Bytes(uint64(st.CompressedBytes)))
	fmt.Fprintf(tw, "took\t%dms\n", st.Millis)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
