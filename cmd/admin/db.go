package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/patch"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	sf := addShardFlags(fs)
	dbPath := fs.String("db", "", "sqlite db path (default: from config)")
	limit := fs.Int("limit", 20, "result limit")
	kind := fs.String("kind", "", "event kind filter (events)")
	_ = fs.Parse(args)

	q := "saves"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = sf.load().IndexPath()
	}
	if _, err := os.Stat(path); err != nil {
		fatal("index", err)
	}

	idx, err := indexdb.OpenSQLite(path, patch.Dynamic)
	if err != nil {
		fatal("open", err)
	}
	defer idx.Close()

	ctx := context.Background()
	switch q {
	case "saves":
		rows, err := idx.Saves(ctx, *limit)
		if err != nil {
			fatal("query", err)
		}
		printJSON(rows)
	case "patches":
		rows, err := idx.Patches(ctx)
		if err != nil {
			fatal("query", err)
		}
		printJSON(rows)
	case "events":
		rows, err := idx.Events(ctx, *kind, *limit)
		if err != nil {
			fatal("query", err)
		}
		printJSON(rows)
	default:
		fmt.Fprintf(os.Stderr, "unknown query %q (saves, patches, events)\n", q)
		os.Exit(2)
	}
}
