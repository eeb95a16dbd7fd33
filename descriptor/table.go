package descriptor

import (
	"fmt"

	"github.com/jacobsa/syncutil"
	"github.com/marmistrz/wasi-common/errs"
	"github.com/marmistrz/wasi-common/rights"
)

// firstDynamicHandle is the lowest handle insert may hand out; 0, 1,
// 2 are reserved for the standard streams here.
const firstDynamicHandle uint32 = 3

// Table is the guest-handle → Entry map. Mutations are guarded
// by an invariant-checked mutex: every Lock/Unlock pair re-validates
// the table's structural invariants so a violation panics at the call
// site that introduced it rather than silently corrupting later.
//
// LOCK ORDERING: Table.mu is always the innermost lock acquired by a
// syscall operation; no other lock is acquired while mu is held, so
// there is no cross-lock ordering to worry about.
type Table struct {
	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	entries map[uint32]*Entry

	// GUARDED_BY(mu)
	// INVARIANT: nextHandle > every key currently present that was
	// allocated by Insert (preseeded 0/1/2 are exempt).
	nextHandle uint32
}

// NewTable constructs an empty table. Callers preseed stdin/stdout/
// stderr and preopens with Preseed before serving any syscall.
func NewTable() *Table {
	t := &Table{
		entries:    make(map[uint32]*Entry),
		nextHandle: firstDynamicHandle,
	}
	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)
	return t
}

func (t *Table) checkInvariants() {
	for h, e := range t.entries {
		if e == nil {
			panic(fmt.Sprintf("nil entry at handle %d", h))
		}
	}
	for h := range t.entries {
		if h >= firstDynamicHandle && h >= t.nextHandle {
			panic(fmt.Sprintf("handle %d allocated at or above nextHandle %d", h, t.nextHandle))
		}
	}
}

// Preseed installs a standard-stream or preopen entry at a specific
// handle, bypassing the lowest-free-handle allocator. Used once at
// sandbox construction time for handles 0/1/2 and for preopened
// directory roots, which occupy the next consecutive handles here.
func (t *Table) Preseed(h uint32, e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[h] = &e
	if h >= t.nextHandle {
		t.nextHandle = h + 1
	}
}

// Get returns the entry at h if it exists and its rights are a
// superset of the rights needed.
func (t *Table) Get(h uint32, neededBase, neededInheriting rights.Rights) (Entry, errs.Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if !ok {
		return Entry{}, errs.BadF
	}
	if !neededBase.Subset(e.RightsBase) || !neededInheriting.Subset(e.RightsInheriting) {
		return Entry{}, errs.NotCapable
	}
	return *e, errs.Success
}

// GetMut returns a pointer to the live entry at h for in-place
// mutation (e.g. rights reduction), under the same rights check as
// Get. The caller must not retain the pointer past the current
// syscall.
func (t *Table) GetMut(h uint32, neededBase, neededInheriting rights.Rights) (*Entry, errs.Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if !ok {
		return nil, errs.BadF
	}
	if !neededBase.Subset(e.RightsBase) || !neededInheriting.Subset(e.RightsInheriting) {
		return nil, errs.NotCapable
	}
	return e, errs.Success
}

// Insert allocates the lowest unused handle >= firstDynamicHandle and
// stores e there.
func (t *Table) Insert(e Entry) (uint32, errs.Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for h := firstDynamicHandle; h < firstDynamicHandle+math32Max; h++ {
		if _, taken := t.entries[h]; !taken {
			t.entries[h] = &e
			if h >= t.nextHandle {
				t.nextHandle = h + 1
			}
			return h, errs.Success
		}
	}
	return 0, errs.NFile
}

// math32Max bounds the linear scan Insert performs looking for the
// lowest free handle; in practice the table never holds anywhere near
// this many entries, so the scan terminates almost immediately.
const math32Max = 1 << 20

// Remove deletes and returns the entry at h. The caller is responsible
// for rejecting removal of preopen entries before calling this.
func (t *Table) Remove(h uint32) (Entry, errs.Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if !ok {
		return Entry{}, errs.BadF
	}
	delete(t.entries, h)
	return *e, errs.Success
}

// Renumber atomically replaces the entry at to with the entry at from,
// closing the prior occupant of to. Neither handle may name a preopen.
func (t *Table) Renumber(from, to uint32) errs.Errno {
	t.mu.Lock()
	defer t.mu.Unlock()

	srcEntry, ok := t.entries[from]
	if !ok {
		return errs.BadF
	}
	if srcEntry.IsPreopen() {
		return errs.NotSup
	}

	if dstEntry, ok := t.entries[to]; ok {
		if dstEntry.IsPreopen() {
			return errs.NotSup
		}
		_ = dstEntry.Descriptor.Close()
	}

	t.entries[to] = srcEntry
	delete(t.entries, from)
	if to >= t.nextHandle {
		t.nextHandle = to + 1
	}
	return errs.Success
}

// CloseAll releases every non-borrowed descriptor in the table, for
// use at sandbox teardown.
// Errors from individual closes are ignored, matching a best-effort
// teardown; preopens are closed here too since the guest-facing
// close's preopen exemption is an operation-level policy, not a
// table-level one.
func (t *Table) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for h, e := range t.entries {
		_ = e.Descriptor.Close()
		delete(t.entries, h)
	}
}
