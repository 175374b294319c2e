package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
)

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		known    []int64
		active   []int64
		upstream []int64
		want     Partition
	}{
		{
			name:     "nothing stored",
			upstream: []int64{3, 1, 2},
			want:     Partition{New: []int64{1, 2, 3}},
		},
		{
			name:   "everything gone",
			known:  []int64{1, 2},
			active: []int64{1, 2},
			want:   Partition{Disappeared: []int64{1, 2}},
		},
		{
			name:     "mixed",
			known:    []int64{1, 2, 3},
			active:   []int64{1, 2},
			upstream: []int64{2, 3, 4},
			want: Partition{
				New:         []int64{4},
				Disappeared: []int64{1},
				Mirrored:    []int64{2, 3},
			},
		},
		{
			name:     "already disappeared is not reported again",
			known:    []int64{1, 2},
			active:   []int64{2},
			upstream: []int64{2},
			want:     Partition{Mirrored: []int64{2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Diff(model.NewIDSet(tt.known...), model.NewIDSet(tt.active...), model.NewIDSet(tt.upstream...))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.upstream) == 0 && len(tt.active) == 0, got.Empty())
		})
	}
}

func TestPolicy(t *testing.T) {
	t.Parallel()

	assert.False(t, PolicyNone.Recurses())
	assert.True(t, PolicyCreation.Recurses())
	assert.False(t, PolicyCreation.UpdatesMirrored())
	assert.True(t, PolicyFull.UpdatesMirrored())
	assert.Equal(t, "full", PolicyFull.String())
	assert.Equal(t, "policy(7)", Policy(7).String())
}
