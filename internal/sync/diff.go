package sync

import "github.com/NovaUNL/Supernova-sub000/internal/model"

// Partition is the result of Diff. Each slice is sorted.
type Partition struct {
	New         []int64
	Disappeared []int64
	Mirrored    []int64
}

// Diff splits ids into new, disappeared and mirrored.
// active is expected to be a subset of known.
func Diff(known, active, upstream model.IDSet) Partition {
	var p Partition
	for _, id := range upstream.Sorted() {
		if known.Has(id) {
			p.Mirrored = append(p.Mirrored, id)
		} else {
			p.New = append(p.New, id)
		}
	}
	for _, id := range active.Sorted() {
		if !upstream.Has(id) {
			p.Disappeared = append(p.Disappeared, id)
		}
	}
	return p
}

// Empty reports whether the partition holds no ids at all.
func (p Partition) Empty() bool {
	return len(p.New) == 0 && len(p.Disappeared) == 0 && len(p.Mirrored) == 0
}
