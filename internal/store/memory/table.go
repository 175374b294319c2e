package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
)

// table is one entity kind held in memory. Rows are cloned on the way in and out.
type table[T model.Cloner[T]] struct {
	mu     sync.RWMutex
	rows   map[int64]T
	byExt  map[int64]int64
	nextID int64
	parent func(T) *int64
}

func newTable[T model.Cloner[T]](parent func(T) *int64) *table[T] {
	if parent == nil {
		parent = func(T) *int64 { return nil }
	}
	return &table[T]{
		rows:   make(map[int64]T),
		byExt:  make(map[int64]int64),
		parent: parent,
	}
}

var _ store.Repository[*model.Class] = (*table[*model.Class])(nil)

func (t *table[T]) ByExternalID(_ context.Context, extID int64) (T, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var zero T
	id, ok := t.byExt[extID]
	if !ok {
		return zero, false, nil
	}
	return t.rows[id].Clone(), true, nil
}

func (t *table[T]) ByID(_ context.Context, id int64) (T, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var zero T
	row, ok := t.rows[id]
	if !ok {
		return zero, false, nil
	}
	return row.Clone(), true, nil
}

func (t *table[T]) List(_ context.Context, scope store.Scope) ([]T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]T, 0, len(t.rows))
	for _, row := range t.rows {
		if t.inScope(row, scope) {
			out = append(out, row.Clone())
		}
	}
	slices.SortFunc(out, func(a, b T) int {
		return cmp.Compare(a.Base().ID, b.Base().ID)
	})
	return out, nil
}

func (t *table[T]) Index(_ context.Context, scope store.Scope) (model.IDSet, model.IDSet, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	known, active := model.NewIDSet(), model.NewIDSet()
	for _, row := range t.rows {
		b := row.Base()
		if b.ExternalID == nil || !t.inScope(row, scope) {
			continue
		}
		known.Add(*b.ExternalID)
		if !b.Disappeared {
			active.Add(*b.ExternalID)
		}
	}
	return known, active, nil
}

func (t *table[T]) Create(_ context.Context, entity T) (T, error) {
	return t.insert(entity, false)
}

// insert stores a new row. When keep is false the row starts unfrozen and without same_as.
func (t *table[T]) insert(entity T, keep bool) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero T
	row := entity.Clone()
	b := row.Base()
	if b.ExternalID != nil {
		if _, exists := t.byExt[*b.ExternalID]; exists {
			return zero, fmt.Errorf("%w: %s %d", store.ErrConflict, row.Kind(), *b.ExternalID)
		}
	}
	if !keep {
		b.Frozen = false
		b.SameAs = nil
	}
	t.nextID++
	b.ID = t.nextID
	t.rows[b.ID] = row
	if b.ExternalID != nil {
		t.byExt[*b.ExternalID] = b.ID
	}
	return row.Clone(), nil
}

func (t *table[T]) Update(_ context.Context, entity T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := entity.Base()
	stored, ok := t.rows[b.ID]
	if !ok {
		return fmt.Errorf("%s %d is not stored", entity.Kind(), b.ID)
	}
	row := entity.Clone()
	rb, sb := row.Base(), stored.Base()
	rb.Frozen = sb.Frozen
	rb.SameAs = sb.SameAs
	if rb.ExtID() != sb.ExtID() {
		if rb.ExternalID != nil {
			if owner, exists := t.byExt[*rb.ExternalID]; exists && owner != rb.ID {
				return fmt.Errorf("%w: %s %d", store.ErrConflict, row.Kind(), *rb.ExternalID)
			}
			t.byExt[*rb.ExternalID] = rb.ID
		}
		if sb.ExternalID != nil {
			delete(t.byExt, *sb.ExternalID)
		}
	}
	t.rows[rb.ID] = row
	return nil
}

func (t *table[T]) Touch(_ context.Context, extIDs []int64, at time.Time) (int64, error) {
	return t.each(extIDs, func(b *model.Importable) bool {
		b.Touch(at)
		return true
	}), nil
}

func (t *table[T]) MarkDisappeared(_ context.Context, extIDs []int64) (int64, error) {
	return t.each(extIDs, func(b *model.Importable) bool {
		if b.Disappeared {
			return false
		}
		b.Disappeared = true
		return true
	}), nil
}

// each applies fn to the stored rows of extIDs and counts the rows fn changed.
func (t *table[T]) each(extIDs []int64, fn func(*model.Importable) bool) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var n int64
	for _, ext := range extIDs {
		id, ok := t.byExt[ext]
		if !ok {
			continue
		}
		if fn(t.rows[id].Base()) {
			n++
		}
	}
	return n
}

// mutate applies fn to the row with local id, if stored.
func (t *table[T]) mutate(id int64, fn func(T)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if row, ok := t.rows[id]; ok {
		fn(row)
	}
}

func (t *table[T]) inScope(row T, scope store.Scope) bool {
	if scope.ParentID == nil {
		return true
	}
	p := t.parent(row)
	return p != nil && *p == *scope.ParentID
}

// disappeared returns the local ids of rows marked disappeared.
func (t *table[T]) disappeared() map[int64]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int64]bool)
	for id, row := range t.rows {
		if row.Base().Disappeared {
			out[id] = true
		}
	}
	return out
}

// parents returns the set of parent ids referenced by any row.
func (t *table[T]) parents() map[int64]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int64]bool)
	for _, row := range t.rows {
		if p := t.parent(row); p != nil {
			out[*p] = true
		}
	}
	return out
}

// cascade marks active rows whose parent is in gone.
func (t *table[T]) cascade(gone map[int64]bool) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var n int64
	for _, row := range t.rows {
		b := row.Base()
		if b.Disappeared {
			continue
		}
		if p := t.parent(row); p != nil && gone[*p] {
			b.Disappeared = true
			n++
		}
	}
	return n
}

// externalID resolves a local id to its external id.
func (t *table[T]) externalID(id int64) (int64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[id]
	if !ok || row.Base().ExternalID == nil {
		return 0, false
	}
	return *row.Base().ExternalID, true
}
