package world

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/codec"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/serial"
)

// Entity is a persistent world object.
//
// Deserialize runs while other entities may still be empty stand-ins: it may
// store references it reads but must not look at another entity's fields.
// Anything derived from other entities belongs in AfterLoad.
type Entity interface {
	Serial() serial.Serial
	TypeName() string
	Serialize(w *codec.Writer)
	Deserialize(r *codec.Reader) error
}

// PostLoader is implemented by entities that derive state from their peers
// once every record has been read.
type PostLoader interface {
	AfterLoad(tx *Tx) error
}

// Deleter is implemented by entities that track their own deletion, so that
// references still held by peers are written as null.
type Deleter interface {
	Delete()
	Deleted() bool
}

// Category names the save segment a type is written to.
type Category string

const (
	CategoryItems   Category = "items"
	CategoryMobiles Category = "mobiles"
	CategoryRegions Category = "regions"
	CategoryMisc    Category = "misc"
)

var categoryOrder = map[Category]int{
	CategoryItems:   0,
	CategoryMobiles: 1,
	CategoryRegions: 2,
	CategoryMisc:    3,
}

// Type registers a concrete entity type. New builds an empty instance keyed
// by s; it is used both for stand-ins during load and, after an identity has
// been allocated, for fresh entities.
type Type struct {
	Name     string
	Kind     serial.Kind
	Category Category
	New      func(s serial.Serial) Entity
}

// Registry maps type tags to constructors.
type Registry struct {
	byName map[string]Type
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]Type{}}
}

// Register adds t. Registering a name twice or an incomplete type panics, as
// it can only be a programming error.
func (r *Registry) Register(t Type) {
	if t.Name == "" || t.New == nil || t.Category == "" {
		panic(fmt.Sprintf("world: incomplete type registration %+v", t))
	}
	if _, dup := r.byName[t.Name]; dup {
		panic(fmt.Sprintf("world: type %q registered twice", t.Name))
	}
	r.byName[t.Name] = t
}

func (r *Registry) Lookup(name string) (Type, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Names returns the registered type names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Categories returns every category with at least one registered type, in
// save order.
func (r *Registry) Categories() []Category {
	seen := map[Category]bool{}
	var out []Category
	for _, t := range r.byName {
		if !seen[t.Category] {
			seen[t.Category] = true
			out = append(out, t.Category)
		}
	}
	sortCategories(out)
	return out
}

func sortCategories(cs []Category) {
	sort.Slice(cs, func(i, j int) bool {
		oi, iok := categoryOrder[cs[i]]
		oj, jok := categoryOrder[cs[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return cs[i] < cs[j]
		}
	})
}

var (
	ErrUnknownType     = errors.New("world: unknown type tag")
	ErrDuplicateSerial = errors.New("world: duplicate serial")
	ErrArity           = errors.New("world: record length does not match fields read")
	ErrBadSerial       = errors.New("world: serial outside the type's range")
)

// RecordError locates a record that failed to load.
type RecordError struct {
	Category Category
	Type     string
	Serial   serial.Serial
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s record %s %v: %v", e.Category, e.Type, e.Serial, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
