package resourcepool

import (
	"context"
	"log"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/world"
)

// Register installs a pre-load hook that refreshes book from path before any
// record is read. It runs early so pools find their table after load.
func Register(w *world.World, book *Book, path string, logger *log.Logger) {
	w.OnPreWorldLoad("resourcepool.pricing", world.PriorityEarly, func(ctx context.Context, tx *world.Tx) error {
		tables, err := LoadFile(path, logger)
		if err != nil {
			return err
		}
		book.Replace(tables)
		logf(logger, "pricing: %d tables from %s", len(tables), path)
		return nil
	})
}
