package magcal

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesStoreBeginSeries(t *testing.T) {
	s := NewSeriesStore()

	assert.ErrorIs(t, s.BeginSeries(-1), ErrOutOfRange)
	assert.ErrorIs(t, s.BeginSeries(LevelCount), ErrOutOfRange)

	require.NoError(t, s.BeginSeries(0))
	require.NoError(t, s.BeginSeries(0), "re-beginning the open series is a no-op")
	s.CloseSeries()
	assert.ErrorIs(t, s.BeginSeries(0), ErrAlreadyClosed)
}

func TestSeriesStoreAppendWithoutOpenSeriesIsDropped(t *testing.T) {
	s := NewSeriesStore()

	level, ok := s.Append(Vec3{X: 1})
	assert.False(t, ok)
	assert.Equal(t, -1, level)

	require.NoError(t, s.BeginSeries(2))
	level, ok = s.Append(Vec3{X: 2})
	assert.True(t, ok)
	assert.Equal(t, 2, level)

	s.CloseSeries()
	_, ok = s.Append(Vec3{X: 3})
	assert.False(t, ok)

	snap := s.Snapshot()
	assert.Equal(t, Series{{X: 2}}, snap[2])
	for i, ser := range snap {
		if i != 2 {
			assert.Empty(t, ser)
		}
	}
}

func TestSeriesStoreBeginFreezesOpenSeries(t *testing.T) {
	s := NewSeriesStore()
	require.NoError(t, s.BeginSeries(0))
	s.Append(Vec3{X: 1})
	require.NoError(t, s.BeginSeries(1))

	open, ok := s.Open()
	assert.True(t, ok)
	assert.Equal(t, 1, open)
	assert.Equal(t, 1, s.Finalized())
	assert.ErrorIs(t, s.BeginSeries(0), ErrAlreadyClosed)
}

func TestSeriesStoreAllSeries(t *testing.T) {
	s := NewSeriesStore()
	for i := 0; i < LevelCount-1; i++ {
		require.NoError(t, s.BeginSeries(i))
		s.Append(Vec3{X: float64(i)})
		s.CloseSeries()
	}
	_, err := s.AllSeries()
	assert.ErrorIs(t, err, ErrIncomplete)

	require.NoError(t, s.BeginSeries(LevelCount-1))
	s.Append(Vec3{X: LevelCount - 1})
	_, err = s.AllSeries()
	assert.ErrorIs(t, err, ErrIncomplete, "open series does not count as finalized")

	s.CloseSeries()
	all, err := s.AllSeries()
	require.NoError(t, err)
	require.Len(t, all, LevelCount)
	for i, ser := range all {
		assert.Equal(t, Series{{X: float64(i)}}, ser)
	}

	// returned series are copies
	all[0][0].X = 100
	again, err := s.AllSeries()
	require.NoError(t, err)
	assert.Equal(t, 0.0, again[0][0].X)
}

func TestSeriesStoreConcurrentAppend(t *testing.T) {
	s := NewSeriesStore()
	require.NoError(t, s.BeginSeries(0))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				s.Append(Vec3{X: float64(i)})
			}
		}()
	}

	// advance while producers are running; every sample lands in exactly one series
	require.NoError(t, s.BeginSeries(1))
	wg.Wait()
	s.CloseSeries()

	counts := s.Counts()
	assert.Equal(t, 8*500, counts[0]+counts[1])
}
