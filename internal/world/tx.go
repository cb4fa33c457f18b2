package world

import (
	"fmt"
	"log"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/patch"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/serial"
)

// Tx is exclusive access to a world, handed to hooks, patches and post-load
// processing. It must not be retained after the call it was passed to.
type Tx struct {
	w *World
}

func (tx *Tx) WorldID() string { return tx.w.id }

func (tx *Tx) Logger() *log.Logger { return tx.w.log }

func (tx *Tx) Patches() *patch.Table { return tx.w.patches }

func (tx *Tx) Lookup(s serial.Serial) (Entity, bool) {
	return tx.w.arena.Get(s)
}

// Get looks up s and asserts its type.
func Get[T Entity](tx *Tx, s serial.Serial) (T, bool) {
	var zero T
	e, ok := tx.w.arena.Get(s)
	if !ok {
		return zero, false
	}
	t, ok := e.(T)
	return t, ok
}

func (tx *Tx) Count() int { return tx.w.arena.Len() }

// Each visits entities in serial order until fn returns false. fn may delete
// entities but must not create them.
func (tx *Tx) Each(fn func(e Entity) bool) {
	for _, s := range tx.w.sortedSerials() {
		e, ok := tx.w.arena.Get(s)
		if !ok {
			continue
		}
		if !fn(e) {
			return
		}
	}
}

// Create builds a fresh entity of the named type with a new serial.
func (tx *Tx) Create(typeName string) (Entity, error) {
	t, ok := tx.w.reg.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typeName)
	}
	s, err := tx.w.alloc.Next(t.Kind)
	if err != nil {
		return nil, err
	}
	e := t.New(s)
	tx.w.arena.Put(s, e)
	return e, nil
}

// Delete removes the entity with serial s. References other entities still
// hold are written as null from now on.
func (tx *Tx) Delete(s serial.Serial) bool {
	e, ok := tx.w.arena.Get(s)
	if !ok {
		return false
	}
	if d, ok := e.(Deleter); ok {
		d.Delete()
	}
	return tx.w.arena.Del(s)
}
