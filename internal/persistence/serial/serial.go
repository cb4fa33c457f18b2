// Package serial defines the stable integer identity shared by every
// persistent entity and the allocator that hands new identities out.
package serial

import (
	"fmt"
	"strconv"
	"strings"
)

// Serial is the identity of a persistent entity. It is the only thing written
// when one entity references another.
type Serial int32

const (
	// Null is the reserved on-disk value for an absent reference.
	Null Serial = -1

	// Zero is never assigned to an entity.
	Zero Serial = 0

	// Mobiles occupy [MinMobile, MaxMobile]; items occupy [MinItem, MaxItem].
	MinMobile Serial = 0x00000001
	MaxMobile Serial = 0x3FFFFFFF
	MinItem   Serial = 0x40000000
	MaxItem   Serial = 0x7FFFFFFF
)

func (s Serial) IsNull() bool   { return s == Null }
func (s Serial) IsValid() bool  { return s > 0 }
func (s Serial) IsMobile() bool { return s >= MinMobile && s <= MaxMobile }
func (s Serial) IsItem() bool   { return s >= MinItem && s <= MaxItem }

func (s Serial) String() string {
	if s == Null {
		return "null"
	}
	return fmt.Sprintf("0x%08X", int32(s))
}

// Parse reads a serial written as hex with a 0x prefix, as decimal, or as
// "null".
func Parse(v string) (Serial, error) {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "null") {
		return Null, nil
	}
	n, err := strconv.ParseInt(v, 0, 32)
	if err != nil {
		return Zero, fmt.Errorf("serial %q: %w", v, err)
	}
	return Serial(n), nil
}

// Kind selects the identity range an entity draws from.
type Kind int

const (
	KindItem Kind = iota
	KindMobile
)

func (k Kind) String() string {
	switch k {
	case KindMobile:
		return "mobile"
	default:
		return "item"
	}
}

// Allocator hands out fresh identities. It is not safe for concurrent use;
// the world serializes all access to it.
type Allocator struct {
	nextItem   int64
	nextMobile int64
}

func NewAllocator() *Allocator {
	a := &Allocator{}
	a.Reset()
	return a
}

// Next returns the next unused identity of kind k.
func (a *Allocator) Next(k Kind) (Serial, error) {
	switch k {
	case KindMobile:
		if a.nextMobile > int64(MaxMobile) {
			return Null, fmt.Errorf("mobile serials exhausted")
		}
		s := Serial(a.nextMobile)
		a.nextMobile++
		return s, nil
	default:
		if a.nextItem > int64(MaxItem) {
			return Null, fmt.Errorf("item serials exhausted")
		}
		s := Serial(a.nextItem)
		a.nextItem++
		return s, nil
	}
}

// Observe advances the allocator past s so loaded identities are never reused.
func (a *Allocator) Observe(s Serial) {
	switch {
	case s.IsMobile():
		if int64(s) >= a.nextMobile {
			a.nextMobile = int64(s) + 1
		}
	case s.IsItem():
		if int64(s) >= a.nextItem {
			a.nextItem = int64(s) + 1
		}
	}
}

// Reset rewinds the allocator to an empty world.
func (a *Allocator) Reset() {
	a.nextItem = int64(MinItem)
	a.nextMobile = int64(MinMobile)
}
