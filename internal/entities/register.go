package entities

import (
	"time"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/serial"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/resourcepool"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/world"
)

// Deps are the services entities reach outside the world.
type Deps struct {
	Pricing *resourcepool.Book
	Now     func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// Register adds every entity type to reg.
func Register(reg *world.Registry, d Deps) {
	item := func(name string, c world.Category, fn func(serial.Serial) world.Entity) {
		reg.Register(world.Type{Name: name, Kind: serial.KindItem, Category: c, New: fn})
	}
	item(TypeItem, world.CategoryItems, func(s serial.Serial) world.Entity { return NewItem(s) })
	item(TypeContainer, world.CategoryItems, func(s serial.Serial) world.Entity { return NewContainer(s) })
	item(TypeTeleporter, world.CategoryItems, func(s serial.Serial) world.Entity { return NewTeleporter(s) })
	item(TypeSpawner, world.CategoryItems, func(s serial.Serial) world.Entity { return NewSpawner(s) })
	item(TypeRegionController, world.CategoryRegions, func(s serial.Serial) world.Entity { return NewRegionController(s) })
	item(TypeResourcePool, world.CategoryMisc, func(s serial.Serial) world.Entity { return NewResourcePool(s, d.Pricing) })

	reg.Register(world.Type{
		Name:     TypeMobile,
		Kind:     serial.KindMobile,
		Category: world.CategoryMobiles,
		New:      func(s serial.Serial) world.Entity { return NewMobile(s) },
	})
}
