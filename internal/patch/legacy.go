package patch

import (
	"fmt"
	"math/bits"
)

// MigrateLegacy copies a pending PatchBits value into the table. Bit k maps to
// ordinal k, which the catalog's legacy region reserves for exactly that
// historical flag. The pending value is zeroed afterwards and never consulted
// again. It returns the ordinals that were newly set.
//
// A bit outside the legacy region means the catalog no longer matches the
// PatchBits layout the save was written with; nothing is migrated then.
func (t *Table) MigrateLegacy() ([]int, error) {
	if t.legacy == 0 {
		return nil, nil
	}
	if hi := 64 - bits.LeadingZeros64(t.legacy); hi > t.cat.Legacy() {
		return nil, fmt.Errorf("%w: legacy bits %#x use bit %d, catalog imports %d", ErrDesync, t.legacy, hi-1, t.cat.Legacy())
	}
	var set []int
	for k := 0; k < t.cat.Legacy(); k++ {
		if t.legacy&(1<<uint(k)) == 0 {
			continue
		}
		if changed, err := t.SetDynamicPatch(k); err != nil {
			return set, err
		} else if changed {
			set = append(set, k)
		}
	}
	t.legacy = 0
	return set, nil
}

// Bits is the frozen PatchBits encoding that predates the table. It is only
// ever read from old saves; do not add values.
type Bits uint64

const (
	BitTeleporterCreatureFix Bits = 1 << iota
	BitSpawnerDelayNormalize
	BitResourcePoolReprice
	BitRegionGuardReset
	BitContainerWeightRecalc
	BitOrphanedItemCleanup
	BitMobileThreatLevelInit
	BitBankBoxTitheFix
)

// SetLegacy stores a PatchBits value read outside the table record, such as
// from a pre-table world header. It is ORed into any pending value.
func (t *Table) SetLegacy(b Bits) {
	t.legacy |= uint64(b)
}
