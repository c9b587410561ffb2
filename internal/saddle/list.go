package saddle

import (
	"cmp"
	"slices"
)

// GrowthFactor is the multiplier applied to the backing array when
// EnsureExtraCapacity runs out of slack.
const GrowthFactor = 1.5

// DefaultCapacity is the initial capacity used by NewList when a
// non-positive capacity is requested.
const DefaultCapacity = 8

// Saddle is the saddle point to the neighbouring region ID.
type Saddle struct {
	// ID is the neighbouring region id.
	ID int32
	// Value is the saddle height.
	Value float32
	// Order is scratch space stamped by the ordered dedup and SortByID.
	Order int32
}

// Compare is the natural order: highest value first, then lowest id.
func Compare(a, b Saddle) int {
	if a.Value != b.Value {
		if a.Value > b.Value {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.ID, b.ID)
}

func compareIDOrder(a, b Saddle) int {
	if c := cmp.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	return cmp.Compare(a.Order, b.Order)
}

// List is a growable array of saddles. The backing array is only grown by
// EnsureExtraCapacity, so Add must be preceded by a capacity reservation.
type List struct {
	data []Saddle
	size int
}

// NewList returns an empty list with the given capacity.
func NewList(capacity int) *List {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &List{data: make([]Saddle, capacity)}
}

// Of builds a list holding the given saddles with no spare capacity.
func Of(saddles ...Saddle) *List {
	l := &List{data: make([]Saddle, len(saddles)), size: len(saddles)}
	copy(l.data, saddles)
	return l
}

// Len returns the number of saddles.
func (l *List) Len() int { return l.size }

// Cap returns the capacity of the backing array.
func (l *List) Cap() int { return len(l.data) }

// At returns the saddle at index i.
func (l *List) At(i int) Saddle { return l.data[i] }

// Items returns a view of the saddles; it is invalidated by any call that
// grows the list.
func (l *List) Items() []Saddle { return l.data[:l.size] }

// EnsureExtraCapacity grows the backing array if fewer than extra free slots
// remain.
func (l *List) EnsureExtraCapacity(extra int) {
	need := l.size + extra
	if need <= len(l.data) {
		return
	}
	newCap := int(float64(len(l.data)) * GrowthFactor)
	if newCap < need {
		newCap = need
	}
	grown := make([]Saddle, newCap)
	copy(grown, l.data[:l.size])
	l.data = grown
}

// Add appends s. Capacity must already have been reserved.
func (l *List) Add(s Saddle) {
	l.data[l.size] = s
	l.size++
}

// Push reserves capacity for one saddle and appends it.
func (l *List) Push(s Saddle) {
	l.EnsureExtraCapacity(1)
	l.Add(s)
}

// AddAll appends every saddle of o, reserving capacity first.
func (l *List) AddAll(o *List) {
	if o == nil || o.size == 0 {
		return
	}
	l.EnsureExtraCapacity(o.size)
	copy(l.data[l.size:], o.data[:o.size])
	l.size += o.size
}

// Clear truncates the list to from saddles. Capacity is kept.
func (l *List) Clear(from int) {
	if from < 0 {
		from = 0
	}
	if from >= l.size {
		return
	}
	clear(l.data[from:l.size])
	l.size = from
}

// Sort sorts by the natural order (see Compare).
func (l *List) Sort() {
	slices.SortFunc(l.data[:l.size], Compare)
}

// SortFunc sorts with a custom comparator.
func (l *List) SortFunc(compare func(a, b Saddle) int) {
	slices.SortFunc(l.data[:l.size], compare)
}

// Copy returns an independent copy with the same capacity.
func (l *List) Copy() *List {
	c := &List{data: make([]Saddle, len(l.data)), size: l.size}
	copy(c.data, l.data[:l.size])
	return c
}

// RemoveIf drops every saddle for which drop returns true, keeping order.
func (l *List) RemoveIf(drop func(Saddle) bool) {
	n := 0
	for i := 0; i < l.size; i++ {
		if !drop(l.data[i]) {
			l.data[n] = l.data[i]
			n++
		}
	}
	l.Clear(n)
}

// Highest returns the first saddle in natural order without sorting the list.
func (l *List) Highest() (Saddle, bool) {
	if l.size == 0 {
		return Saddle{}, false
	}
	best := l.data[0]
	for _, s := range l.data[1:l.size] {
		if Compare(s, best) < 0 {
			best = s
		}
	}
	return best, true
}

// RemoveDuplicates keeps the first saddle encountered for each id, then
// sorts the survivors by the natural order.
func (l *List) RemoveDuplicates() {
	if l.size < 2 {
		return
	}
	seen := make(map[int32]struct{}, l.size)
	n := 0
	for i := 0; i < l.size; i++ {
		s := l.data[i]
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		l.data[n] = s
		n++
	}
	l.Clear(n)
	l.Sort()
}

// RemoveDuplicatesOrdered keeps, for each id, the saddle with the lowest
// current index. With maintainOrder the survivors stay in their original
// relative order; otherwise they are sorted by the natural order.
func (l *List) RemoveDuplicatesOrdered(maintainOrder bool) {
	if l.size < 2 {
		return
	}
	l.SortByID()
	n := 1
	for i := 1; i < l.size; i++ {
		if l.data[i].ID != l.data[n-1].ID {
			l.data[n] = l.data[i]
			n++
		}
	}
	l.Clear(n)
	if maintainOrder {
		slices.SortFunc(l.data[:l.size], func(a, b Saddle) int {
			return cmp.Compare(a.Order, b.Order)
		})
		return
	}
	l.Sort()
}

// SortByID stamps each saddle with its current index and stable-sorts by
// (id, index), so saddles for one neighbour stay in arrival order.
func (l *List) SortByID() {
	for i := 0; i < l.size; i++ {
		l.data[i].Order = int32(i)
	}
	slices.SortStableFunc(l.data[:l.size], compareIDOrder)
}
