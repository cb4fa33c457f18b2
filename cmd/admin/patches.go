package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/patch"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/codec"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/store"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/shard"
)

// readPatchTable decodes the patch table of sv without loading the world.
func readPatchTable(sv *store.Save) (*patch.Table, string, error) {
	t := patch.NewTable(patch.Dynamic)
	if data, ok, err := sv.ReadFile("patches.bin"); err != nil {
		return nil, "", err
	} else if ok {
		r := codec.NewReader(data, nil)
		if err := t.Deserialize(r); err != nil {
			return nil, "", err
		}
		return t, "patches.bin", nil
	}
	if data, ok, err := sv.ReadFile("patches.xml"); err != nil {
		return nil, "", err
	} else if ok {
		if err := t.ReadXML(bytes.NewReader(data)); err != nil {
			return nil, "", err
		}
		return t, "patches.xml", nil
	}
	return t, "", nil
}

func patchesCmd(args []string) {
	fs := flag.NewFlagSet("patches", flag.ExitOnError)
	sf := addShardFlags(fs)
	saveDir := fs.String("save", "", "save directory (default: current save)")
	asXML := fs.Bool("xml", false, "print the table as xml")
	_ = fs.Parse(args)

	sv := openSave(sf.load(), *saveDir)
	t, source, err := readPatchTable(sv)
	if err != nil {
		fatal("read patch table", err)
	}
	if source == "" {
		fmt.Fprintln(os.Stderr, "save carries no patch table; showing catalog")
	}
	if legacy := t.Legacy(); legacy != 0 {
		fmt.Printf("legacy bits %#x pending migration\n", legacy)
		if _, err := t.MigrateLegacy(); err != nil {
			fatal("migrate legacy bits", err)
		}
	}
	if *asXML {
		if err := t.WriteXML(os.Stdout); err != nil {
			fatal("write xml", err)
		}
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	for _, e := range t.Entries() {
		state := "pending"
		if e.Applied {
			state = "applied"
		}
		legacy := ""
		if e.Ordinal < patch.Dynamic.Legacy() {
			legacy = "legacy"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Ordinal, e.Key, state, legacy)
	}
}

// clearPatchCmd loads the current save, clears one patch and writes a new
// save, so the patch runs again on the next server start. The server must not
// be running.
func clearPatchCmd(args []string) {
	fs := flag.NewFlagSet("clear-patch", flag.ExitOnError)
	sf := addShardFlags(fs)
	key := fs.String("key", "", "patch key (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*key) == "" {
		fmt.Fprintln(os.Stderr, "missing -key")
		os.Exit(2)
	}
	cfg := sf.load()
	logger := log.New(os.Stderr, "[admin] ", log.LstdFlags)
	sh, err := shard.Open(cfg, shard.Options{Logger: logger})
	if err != nil {
		fatal("open shard", err)
	}
	defer sh.Close()

	ctx := context.Background()
	loaded, err := sh.LoadCurrent(ctx)
	if err != nil {
		fatal("load", err)
	}
	if !loaded {
		fmt.Fprintln(os.Stderr, "no current save")
		os.Exit(1)
	}
	changed, err := sh.World.ClearPatch(strings.TrimSpace(*key))
	if err != nil {
		fatal("clear patch", err)
	}
	if !changed {
		fmt.Printf("patch %s was not applied; nothing to do\n", *key)
		return
	}
	st, err := sh.Save(ctx)
	if err != nil {
		fatal("save", err)
	}
	fmt.Printf("cleared %s: save=%s records=%d\n", *key, st.SaveID, st.Records)
}
