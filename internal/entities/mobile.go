package entities

import (
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/codec"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/serial"
)

type Mobile struct {
	base

	Name     string
	Body     int
	Location codec.Point3D
	Map      string
	Backpack *Container
	BaseHits int

	ThreatLevel int
	Title       *string
}

var mobileSchema = codec.Schema[*Mobile]{
	Type: TypeMobile,
	Steps: []codec.Step[*Mobile]{
		func(m *Mobile, r *codec.Reader, _ int) {
			m.BaseHits = r.ReadInt()
			m.Name = r.ReadString()
			m.Body = r.ReadEncodedInt()
			m.Location = r.ReadPoint3D()
			m.Map = r.ReadString()
			m.Backpack = codec.Ref[*Container](r)
		},
		func(m *Mobile, r *codec.Reader, _ int) {
			m.ThreatLevel = r.ReadInt()
		},
		func(m *Mobile, r *codec.Reader, _ int) {
			m.Title = r.ReadNullableString()
		},
	},
}

func NewMobile(s serial.Serial) *Mobile {
	return &Mobile{base: base{id: s}, Map: "Felucca"}
}

func (m *Mobile) TypeName() string { return TypeMobile }

func (m *Mobile) Serialize(w *codec.Writer) {
	w.WriteVersion(mobileSchema.Current())
	w.WriteNullableString(m.Title)
	w.WriteInt(m.ThreatLevel)
	w.WriteInt(m.BaseHits)
	w.WriteString(m.Name)
	w.WriteEncodedInt(m.Body)
	w.WritePoint3D(m.Location)
	w.WriteString(m.Map)
	w.WriteRef(m.Backpack)
}

func (m *Mobile) Deserialize(r *codec.Reader) error {
	_, err := mobileSchema.Read(m, r)
	return err
}
