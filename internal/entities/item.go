// Package entities holds the shard's persistent world object types and the
// startup patches that migrate them.
//
// Each type keeps a codec.Schema with one step per version. Serialize always
// writes the newest version with the newest fields first; types built on Item
// write the Item record ahead of their own.
package entities

import (
	"time"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/codec"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/serial"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/world"
)

type base struct {
	id      serial.Serial
	deleted bool
}

func (b *base) Serial() serial.Serial { return b.id }
func (b *base) Delete()               { b.deleted = true }
func (b *base) Deleted() bool         { return b.deleted }

const (
	TypeItem             = "Item"
	TypeContainer        = "Container"
	TypeMobile           = "Mobile"
	TypeTeleporter       = "Teleporter"
	TypeSpawner          = "Spawner"
	TypeResourcePool     = "ResourcePool"
	TypeRegionController = "RegionController"
)

// unitWeight is what one unit of a plain item weighs.
const unitWeight = 1.0

type Item struct {
	base

	Name     string
	Hue      int
	Amount   int
	Location codec.Point3D

	// Parent is the container or mobile holding the item, nil on the ground.
	Parent    world.Entity
	LastMoved time.Time
}

var itemSchema = codec.Schema[*Item]{
	Type: TypeItem,
	Steps: []codec.Step[*Item]{
		func(it *Item, r *codec.Reader, v int) {
			it.Name = r.ReadString()
			it.Hue = r.ReadEncodedInt()
			it.Amount = r.ReadInt()
			it.Location = r.ReadPoint3D()
			if v < 3 {
				r.SkipDouble() // stored weight, derived since v3
			}
		},
		func(it *Item, r *codec.Reader, _ int) {
			it.Parent = codec.Ref[world.Entity](r)
		},
		func(it *Item, r *codec.Reader, _ int) {
			it.LastMoved = r.ReadTime()
		},
		nil,
	},
}

func NewItem(s serial.Serial) *Item {
	return &Item{base: base{id: s}, Amount: 1}
}

func (it *Item) TypeName() string { return TypeItem }

func (it *Item) Weight() float64 {
	if it.Amount < 1 {
		return unitWeight
	}
	return unitWeight * float64(it.Amount)
}

func (it *Item) Serialize(w *codec.Writer) {
	w.WriteVersion(itemSchema.Current())
	w.WriteTime(it.LastMoved)
	w.WriteRef(it.Parent)
	w.WriteString(it.Name)
	w.WriteEncodedInt(it.Hue)
	w.WriteInt(it.Amount)
	w.WritePoint3D(it.Location)
}

func (it *Item) Deserialize(r *codec.Reader) error {
	_, err := itemSchema.Read(it, r)
	return err
}

// containerWeight is the weight of an empty container.
const containerWeight = 2.0

// maxNesting bounds the walk over nested containers.
const maxNesting = 32

type Container struct {
	Item

	Contents []world.Entity
	MaxItems int

	// TotalWeight is the weight of everything inside, recomputed after load.
	TotalWeight float64
}

var containerSchema = codec.Schema[*Container]{
	Type: TypeContainer,
	Steps: []codec.Step[*Container]{
		func(c *Container, r *codec.Reader, _ int) {
			c.Contents = codec.RefList[world.Entity](r)
		},
		func(c *Container, r *codec.Reader, _ int) {
			c.MaxItems = r.ReadInt()
		},
	},
}

func NewContainer(s serial.Serial) *Container {
	return &Container{Item: *NewItem(s), MaxItems: 125}
}

func (c *Container) TypeName() string { return TypeContainer }

func (c *Container) Weight() float64 { return containerWeight + c.TotalWeight }

func (c *Container) Serialize(w *codec.Writer) {
	c.Item.Serialize(w)
	w.WriteVersion(containerSchema.Current())
	w.WriteInt(c.MaxItems)
	codec.WriteRefList(w, c.Contents)
}

func (c *Container) Deserialize(r *codec.Reader) error {
	if err := c.Item.Deserialize(r); err != nil {
		return err
	}
	_, err := containerSchema.Read(c, r)
	return err
}

func (c *Container) AfterLoad(*world.Tx) error {
	c.Recompute()
	return nil
}

// Add puts e inside c. It does not check MaxItems.
func (c *Container) Add(e world.Entity) {
	c.Contents = append(c.Contents, e)
	if it := itemOf(e); it != nil {
		it.Parent = c
	}
}

// Recompute refreshes TotalWeight from the contents, walking nested
// containers rather than trusting their cached totals.
func (c *Container) Recompute() {
	c.TotalWeight = contentsWeight(c, 0)
}

func contentsWeight(c *Container, depth int) float64 {
	if depth > maxNesting {
		return 0
	}
	total := 0.0
	for _, e := range c.Contents {
		if d, ok := e.(world.Deleter); ok && d.Deleted() {
			continue
		}
		switch v := e.(type) {
		case *Container:
			total += containerWeight + contentsWeight(v, depth+1)
		case interface{ Weight() float64 }:
			total += v.Weight()
		}
	}
	return total
}

// itemOf returns the Item embedded in e, if any.
func itemOf(e world.Entity) *Item {
	switch v := e.(type) {
	case *Item:
		return v
	case *Container:
		return &v.Item
	case *Teleporter:
		return &v.Item
	case *Spawner:
		return &v.Item
	}
	return nil
}
