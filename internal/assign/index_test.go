package assign

import (
	"math/rand"
	"testing"

	"github.com/banshee-data/findfoci/internal/findfoci"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func focus(id, x, y, z int, v float64) findfoci.FociRecord {
	return findfoci.FociRecord{ID: id, X: x, Y: y, Z: z, MaxValue: v}
}

func TestNewIndex_Dimensions(t *testing.T) {
	t.Parallel()
	flat := NewIndex(findfoci.FociList{focus(1, 0, 0, 2, 1), focus(2, 5, 5, 2, 1)}, Scale{})
	assert.False(t, flat.Is3D())
	assert.Equal(t, 2, flat.Len())

	deep := NewIndex(findfoci.FociList{focus(1, 0, 0, 2, 1), focus(2, 5, 5, 3, 1)}, Scale{})
	assert.True(t, deep.Is3D())

	empty := NewIndex(nil, Scale{})
	empty.SetSearchDistance(10)
	assert.Nil(t, empty.FindClosest(0, 0, 0, false))
}

func TestFindClosest_NeverReturnsTheSameRecordTwice(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))
	var foci findfoci.FociList
	for i := 0; i < 200; i++ {
		foci = append(foci, focus(i+1, rng.Intn(100), rng.Intn(100), rng.Intn(5), rng.Float64()))
	}
	ix := NewIndex(foci, Scale{X: 1, Y: 1, Z: 2})
	ix.SetSearchDistance(1000)
	ix.SetAssigned(false)

	seen := map[int]bool{}
	for i := 0; i < len(foci); i++ {
		q := foci[rng.Intn(len(foci))]
		got := ix.FindClosest(float64(q.X), float64(q.Y), float64(q.Z), false)
		require.NotNil(t, got, "query %d", i)
		require.False(t, seen[got.ID], "record %d returned twice", got.ID)
		seen[got.ID] = true
		got.Assigned = true
	}
	assert.Len(t, seen, len(foci))
	assert.Nil(t, ix.FindClosest(50, 50, 2, false))

	// The source list is not modified.
	for _, f := range foci {
		assert.NotZero(t, f.ID)
	}
}

func TestFindClosest_MatchesBruteForce(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(11))
	var foci findfoci.FociList
	for i := 0; i < 100; i++ {
		foci = append(foci, focus(i+1, rng.Intn(50), rng.Intn(50), 0, 0))
	}
	ix := NewIndex(foci, Scale{})
	ix.SetSearchDistance(8)
	for q := 0; q < 100; q++ {
		x, y := rng.Float64()*50, rng.Float64()*50
		best, bestD := -1, 64.0
		for i, f := range foci {
			dx, dy := float64(f.X)-x, float64(f.Y)-y
			d := dx*dx + dy*dy
			if d < bestD || (d == bestD && (best < 0 || i < best)) {
				best, bestD = i, d
			}
		}
		got := ix.FindClosest(x, y, 0, false)
		if best < 0 {
			assert.Nil(t, got)
			continue
		}
		require.NotNil(t, got)
		assert.Equal(t, foci[best].ID, got.ID)
	}
}

func TestFindClosest_RespectsSearchDistance(t *testing.T) {
	t.Parallel()
	ix := NewIndex(findfoci.FociList{focus(1, 10, 0, 0, 1)}, Scale{})
	ix.SetSearchDistance(5)
	assert.Equal(t, 25.0, ix.SearchDistance())
	assert.Nil(t, ix.FindClosest(0, 0, 0, false))
	assert.NotNil(t, ix.FindClosest(5, 0, 0, false), "boundary is inclusive")
}

func TestFindExact(t *testing.T) {
	t.Parallel()
	ix := NewIndex(findfoci.FociList{focus(1, 3, 4, 0, 1), focus(2, 3, 5, 0, 1)}, Scale{})
	ix.SetSearchDistance(10)

	got := ix.FindExact(3, 4, 0, false)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.ID)
	assert.Nil(t, ix.FindExact(3, 4.5, 0, false))
	assert.Nil(t, ix.FindExact(3, 4, 0, true))

	got.Assigned = true
	assert.Nil(t, ix.FindExact(3, 4, 0, false))
	assert.NotNil(t, ix.FindExact(3, 4, 0, true))
}

func TestFindHighest(t *testing.T) {
	t.Parallel()
	ix := NewIndex(findfoci.FociList{
		focus(1, 1, 0, 0, 10),
		focus(2, 4, 0, 0, 50),
		focus(3, 20, 0, 0, 99),
	}, Scale{})
	ix.SetSearchDistance(5)

	assert.Equal(t, 1, ix.FindClosest(0, 0, 0, false).ID)
	assert.Equal(t, 2, ix.FindHighest(0, 0, 0, false).ID)

	ix.SetMode(Highest)
	assert.Equal(t, 2, ix.Find(0, 0, 0, false).ID)
	ix.SetMode(Closest)
	assert.Equal(t, 1, ix.Find(0, 0, 0, false).ID)
}

func TestScaleWeights(t *testing.T) {
	t.Parallel()
	foci := findfoci.FociList{focus(1, 0, 0, 1, 1), focus(2, 2, 0, 0, 1)}

	ix := NewIndex(foci, Scale{X: 1, Y: 1, Z: 1})
	ix.SetSearchDistance(10)
	assert.Equal(t, 1, ix.FindClosest(0, 0, 0, false).ID)

	// z distances count four times as much.
	ix = NewIndex(foci, Scale{X: 1, Y: 1, Z: 0.25})
	ix.SetSearchDistance(10)
	assert.Equal(t, 2, ix.FindClosest(0, 0, 0, false).ID)
}

func TestSetAssignedAndForEach(t *testing.T) {
	t.Parallel()
	ix := NewIndex(findfoci.FociList{focus(1, 0, 0, 0, 1), focus(2, 1, 1, 0, 1), focus(3, 2, 2, 0, 1)}, Scale{})
	ix.SetSearchDistance(100)
	ix.SetAssigned(true)

	n := 0
	ix.ForEach(func(a *AssignedFoci) {
		assert.True(t, a.Assigned)
		n++
	})
	assert.Equal(t, 3, n)
	assert.Nil(t, ix.FindClosest(0, 0, 0, false))

	ix.SetAssigned(false)
	assert.NotNil(t, ix.FindClosest(0, 0, 0, false))
}
