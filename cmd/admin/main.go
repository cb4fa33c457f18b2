package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/config"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/archive"
	persistlog "github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/log"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/serial"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/store"
)

const usage = `usage: admin <command> [flags]

commands:
  records      list categories and records of a save
  dump         print one record's header and payload
  patches      show the patch table of a save
  clear-patch  mark a patch as not applied and resave
  db           query the sqlite index (saves, patches, events)
  backups      list save backups
  restore      make a backup the current save
  audit        print the audit log
  state        GET /admin/v1/state from a running server
  save         POST /admin/v1/save to a running server`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	args := os.Args[2:]
	switch os.Args[1] {
	case "records":
		recordsCmd(args)
	case "dump":
		dumpCmd(args)
	case "patches":
		patchesCmd(args)
	case "clear-patch":
		clearPatchCmd(args)
	case "db":
		dbCmd(args)
	case "backups":
		backupsCmd(args)
	case "restore":
		restoreCmd(args)
	case "audit":
		auditCmd(args)
	case "state":
		stateCmd(args)
	case "save":
		saveCmd(args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

// shardFlags are the flags every offline command shares.
type shardFlags struct {
	config *string
	data   *string
	world  *string
}

func addShardFlags(fs *flag.FlagSet) shardFlags {
	return shardFlags{
		config: fs.String("config", "./configs/server.yaml", "server config path (empty for defaults)"),
		data:   fs.String("data", "", "runtime data directory (overrides config)"),
		world:  fs.String("world", "", "world id (overrides config)"),
	}
}

func (f shardFlags) load() config.Config {
	path := strings.TrimSpace(*f.config)
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		fatal("load config", err)
	}
	cfg.SetDataDir(*f.data)
	if v := strings.TrimSpace(*f.world); v != "" {
		cfg.WorldID = v
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		fatal("config", err)
	}
	return cfg
}

func openSave(cfg config.Config, dir string) *store.Save {
	if strings.TrimSpace(dir) == "" {
		dir = cfg.CurrentDir()
	}
	sv, err := store.Open(dir)
	if err != nil {
		fatal("open save", err)
	}
	return sv
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func recordsCmd(args []string) {
	fs := flag.NewFlagSet("records", flag.ExitOnError)
	sf := addShardFlags(fs)
	saveDir := fs.String("save", "", "save directory (default: current save)")
	category := fs.String("category", "", "only list this category")
	summary := fs.Bool("summary", false, "only print per-category totals")
	_ = fs.Parse(args)

	sv := openSave(sf.load(), *saveDir)
	m := sv.Manifest
	fmt.Printf("save=%s world=%s created=%s records=%d\n", m.SaveID, m.WorldID, m.CreatedAt, m.TotalRecords())

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	for _, c := range m.Categories {
		if *category != "" && c.Name != *category {
			continue
		}
		fmt.Fprintf(tw, "%s\t%d records\t%s\t%s compressed\n", c.Name, c.Records,
			humanize.Bytes(uint64(c.Bytes)), humanize.Bytes(uint64(c.CompressedBytes)))
		if *summary {
			continue
		}
		hdrs, err := sv.Index(c.Name)
		if err != nil {
			tw.Flush()
			fatal("index "+c.Name, err)
		}
		for _, h := range hdrs {
			fmt.Fprintf(tw, "  %s\t%s\t%d\n", h.Serial, h.Type, h.Len)
		}
	}
	for _, f := range m.Files {
		fmt.Fprintf(tw, "file\t%s\n", f)
	}
}

func dumpCmd(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	sf := addShardFlags(fs)
	saveDir := fs.String("save", "", "save directory (default: current save)")
	id := fs.String("serial", "", "record serial, hex (0x...) or decimal (required)")
	_ = fs.Parse(args)

	want, err := serial.Parse(*id)
	if err != nil || !want.IsValid() {
		fmt.Fprintln(os.Stderr, "missing or invalid -serial")
		os.Exit(2)
	}
	sv := openSave(sf.load(), *saveDir)
	for _, cat := range sv.Categories() {
		hdrs, err := sv.Index(cat)
		if err != nil {
			fatal("index "+cat, err)
		}
		found := false
		err = sv.Payloads(cat, hdrs, func(h store.Header, payload []byte) error {
			if h.Serial != want {
				return nil
			}
			found = true
			fmt.Printf("category=%s type=%s serial=%s len=%d\n", cat, h.Type, h.Serial, h.Len)
			fmt.Print(hex.Dump(payload))
			return nil
		})
		if err != nil {
			fatal("read "+cat, err)
		}
		if found {
			return
		}
	}
	fmt.Fprintf(os.Stderr, "serial %s not in save\n", want)
	os.Exit(1)
}

func backupsCmd(args []string) {
	fs := flag.NewFlagSet("backups", flag.ExitOnError)
	sf := addShardFlags(fs)
	asJSON := fs.Bool("json", false, "print json")
	_ = fs.Parse(args)

	cfg := sf.load()
	list, err := archive.List(cfg.BackupsDir())
	if err != nil {
		fatal("list backups", err)
	}
	if *asJSON {
		printJSON(list)
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	for _, b := range list {
		if b.Err != "" {
			fmt.Fprintf(tw, "%s\tunreadable: %s\n", b.Name, b.Err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d records\t%s\n", b.Name, b.SaveID, b.Records, b.CreatedAt)
	}
}

func restoreCmd(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	sf := addShardFlags(fs)
	name := fs.String("backup", "", "backup name from 'admin backups' (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*name) == "" {
		fmt.Fprintln(os.Stderr, "missing -backup")
		os.Exit(2)
	}
	cfg := sf.load()
	b, err := archive.Restore(cfg.BackupsDir(), *name, cfg.CurrentDir(), time.Now())
	if err != nil {
		fatal("restore", err)
	}
	fmt.Printf("restore ok: backup=%s save=%s records=%d current=%s\n", b.Name, b.SaveID, b.Records, cfg.CurrentDir())
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	sf := addShardFlags(fs)
	kind := fs.String("kind", "", "only entries of this kind")
	_ = fs.Parse(args)

	cfg := sf.load()
	entries, err := persistlog.ReadAudit(cfg.AuditDir())
	for _, e := range entries {
		if *kind != "" && string(e.Kind) != *kind {
			continue
		}
		b, _ := json.Marshal(e)
		fmt.Println(string(b))
	}
	if err != nil {
		fatal("read audit", err)
	}
}
