package entities

import (
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/codec"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/serial"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/resourcepool"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/world"
)

// ResourcePool tracks the shard-wide stock of one resource. Its price comes
// from a pricing table that is only resolved after load, because the tables
// are loaded by a pre-load hook rather than saved with the world.
type ResourcePool struct {
	base
	book *resourcepool.Book

	Resource     string
	Balance      int
	PricingTable string

	// Price and Max are resolved from the pricing table.
	Price float64
	Max   int
}

var poolSchema = codec.Schema[*ResourcePool]{
	Type: TypeResourcePool,
	Steps: []codec.Step[*ResourcePool]{
		func(p *ResourcePool, r *codec.Reader, _ int) {
			p.Resource = r.ReadString()
			p.Balance = r.ReadInt()
		},
		func(p *ResourcePool, r *codec.Reader, _ int) {
			p.PricingTable = r.ReadString()
		},
	},
}

func NewResourcePool(s serial.Serial, book *resourcepool.Book) *ResourcePool {
	return &ResourcePool{base: base{id: s}, book: book}
}

func (p *ResourcePool) TypeName() string { return TypeResourcePool }

func (p *ResourcePool) Serialize(w *codec.Writer) {
	w.WriteVersion(poolSchema.Current())
	w.WriteString(p.PricingTable)
	w.WriteString(p.Resource)
	w.WriteInt(p.Balance)
}

func (p *ResourcePool) Deserialize(r *codec.Reader) error {
	_, err := poolSchema.Read(p, r)
	return err
}

func (p *ResourcePool) AfterLoad(tx *world.Tx) error {
	p.Reprice(tx)
	return nil
}

// Reprice resolves Price and Max from the named table, falling back to the
// default table when it is gone.
func (p *ResourcePool) Reprice(tx *world.Tx) {
	if p.book == nil {
		return
	}
	t, ok := p.book.Table(p.PricingTable)
	if !ok {
		tx.Logger().Printf("WARNING: pool %v: pricing table %q not found, using %s", p.id, p.PricingTable, resourcepool.DefaultTable)
		if t, ok = p.book.Table(resourcepool.DefaultTable); !ok {
			return
		}
	}
	res, ok := t.Lookup(p.Resource)
	if !ok {
		tx.Logger().Printf("WARNING: pool %v: %q not priced in table %s", p.id, p.Resource, t.Name)
		return
	}
	p.Price, p.Max = res.Price, res.Max
}
