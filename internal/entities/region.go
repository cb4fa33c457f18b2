package entities

import (
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/codec"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/serial"
)

type GuardFlags uint32

const (
	GuardsDisabled GuardFlags = 1 << iota
	GuardsIgnoreCriminals
	GuardsIgnoreMurderers
	GuardsNoRecall
)

// DefaultGuardFlags is what a region controller starts with.
const DefaultGuardFlags GuardFlags = 0

type RegionController struct {
	base

	Region string
	Guards GuardFlags
	Owner  *Mobile
}

var regionSchema = codec.Schema[*RegionController]{
	Type: TypeRegionController,
	Steps: []codec.Step[*RegionController]{
		func(rc *RegionController, r *codec.Reader, _ int) {
			rc.Region = r.ReadString()
		},
		func(rc *RegionController, r *codec.Reader, _ int) {
			rc.Guards = GuardFlags(r.ReadEncodedInt())
		},
		func(rc *RegionController, r *codec.Reader, _ int) {
			rc.Owner = codec.Ref[*Mobile](r)
		},
	},
}

func NewRegionController(s serial.Serial) *RegionController {
	return &RegionController{base: base{id: s}, Guards: DefaultGuardFlags}
}

func (rc *RegionController) TypeName() string { return TypeRegionController }

func (rc *RegionController) Has(f GuardFlags) bool { return rc.Guards&f != 0 }

func (rc *RegionController) Serialize(w *codec.Writer) {
	w.WriteVersion(regionSchema.Current())
	w.WriteRef(rc.Owner)
	w.WriteEncodedInt(int(rc.Guards))
	w.WriteString(rc.Region)
}

func (rc *RegionController) Deserialize(r *codec.Reader) error {
	_, err := regionSchema.Read(rc, r)
	return err
}
