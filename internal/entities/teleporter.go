package entities

import (
	"time"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/codec"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/serial"
)

type Teleporter struct {
	Item

	Dest    codec.Point3D
	DestMap string
	Delay   time.Duration
	// Creatures lets non-player mobiles through.
	Creatures bool
	// Link is the partner teleporter at the destination. Partners usually
	// point at each other.
	Link *Teleporter
}

var teleporterSchema = codec.Schema[*Teleporter]{
	Type: TypeTeleporter,
	Steps: []codec.Step[*Teleporter]{
		func(t *Teleporter, r *codec.Reader, _ int) {
			t.Dest = r.ReadPoint3D()
			t.DestMap = r.ReadString()
		},
		func(t *Teleporter, r *codec.Reader, _ int) {
			t.Delay = r.ReadDuration()
		},
		func(t *Teleporter, r *codec.Reader, _ int) {
			t.Creatures = r.ReadBool()
		},
		func(t *Teleporter, r *codec.Reader, _ int) {
			t.Link = codec.Ref[*Teleporter](r)
		},
	},
}

func NewTeleporter(s serial.Serial) *Teleporter {
	return &Teleporter{Item: *NewItem(s)}
}

func (t *Teleporter) TypeName() string { return TypeTeleporter }

func (t *Teleporter) Serialize(w *codec.Writer) {
	t.Item.Serialize(w)
	w.WriteVersion(teleporterSchema.Current())
	w.WriteRef(t.Link)
	w.WriteBool(t.Creatures)
	w.WriteDuration(t.Delay)
	w.WritePoint3D(t.Dest)
	w.WriteString(t.DestMap)
}

func (t *Teleporter) Deserialize(r *codec.Reader) error {
	if err := t.Item.Deserialize(r); err != nil {
		return err
	}
	_, err := teleporterSchema.Read(t, r)
	return err
}
