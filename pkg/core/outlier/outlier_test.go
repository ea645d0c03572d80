package outlier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixed votes for the points listed in marks
type stubDetector struct {
	name  string
	marks map[int]bool
}

func (s stubDetector) Name() string   { return s.name }
func (s stubDetector) MinPoints() int { return 0 }
func (s stubDetector) Detect(values []float64) []bool {
	out := make([]bool, len(values))
	for i := range values {
		out[i] = s.marks[i]
	}
	return out
}

func TestEnsemble_Quorum(t *testing.T) {
	values := []float64{10, 11, 12, 13, 14}

	t.Run("one of three is not enough", func(t *testing.T) {
		e := NewEnsemble(2, 4,
			stubDetector{"a", map[int]bool{2: true}},
			stubDetector{"b", nil},
			stubDetector{"c", nil},
		)
		assert.Empty(t, e.Flag(values))
	})

	t.Run("two of three flags", func(t *testing.T) {
		e := NewEnsemble(2, 4,
			stubDetector{"a", map[int]bool{2: true}},
			stubDetector{"b", map[int]bool{2: true, 4: true}},
			stubDetector{"c", nil},
		)
		flags := e.Flag(values)
		require.Len(t, flags, 1)
		assert.Equal(t, 2, flags[0].Index)
		assert.Equal(t, 2, flags[0].Votes)
		assert.Equal(t, []string{"a", "b"}, flags[0].Detectors)
	})

	t.Run("short series are skipped", func(t *testing.T) {
		e := NewEnsemble(1, 4, stubDetector{"a", map[int]bool{0: true}})
		assert.Nil(t, e.Flag([]float64{1, 2, 3}))
	})
}

func TestEnsemble_DetectorMinimumLength(t *testing.T) {
	e := Default(DefaultConfig())
	assert.Equal(t, []string{"isolation_forest", "mad", "iqr", "rolling_zscore"}, e.Detectors())

	// rolling z-score would need eight points; the other three still reach quorum
	flags := e.Flag([]float64{100, 110, 1950, 120, 130})
	require.Len(t, flags, 1)
	assert.Equal(t, 2, flags[0].Index)
	assert.NotContains(t, flags[0].Detectors, "rolling_zscore")
}

func TestMAD(t *testing.T) {
	marks := NewMAD(3.5).Detect([]float64{100, 110, 1950, 120, 130})
	assert.Equal(t, []bool{false, false, true, false, false}, marks)

	t.Run("flat series uses mean deviation", func(t *testing.T) {
		marks := NewMAD(3.5).Detect([]float64{5, 5, 5, 5, 5, 40})
		assert.Equal(t, []bool{false, false, false, false, false, true}, marks)
	})

	t.Run("constant series flags nothing", func(t *testing.T) {
		assert.Equal(t, []bool{false, false, false, false}, NewMAD(3.5).Detect([]float64{7, 7, 7, 7}))
	})
}

func TestIQR(t *testing.T) {
	// Q1 = 102.5, Q3 = 127.5, fences at 65 and 165
	marks := NewIQR(1.5).Detect([]float64{100, 110, 1950, 120, 130})
	assert.Equal(t, []bool{false, false, true, false, false}, marks)

	low := NewIQR(1.5).Detect([]float64{-900, 110, 115, 120, 125, 130, 112, 118})
	assert.True(t, low[0])
}

func TestRollingZScore(t *testing.T) {
	values := []float64{100, 102, 98, 101, 99, 103, 250, 104, 102}
	marks := NewRollingZScore(4, 3, 8).Detect(values)
	assert.True(t, marks[6])
	assert.False(t, marks[5])
	for i := 0; i < 4; i++ {
		assert.False(t, marks[i], "no history for index %d", i)
	}
}

func TestIsolationForest(t *testing.T) {
	values := []float64{100, 104, 98, 101, 2000, 99, 103, 102}
	f := NewIsolationForest(100, 0.1, 42)

	scores := f.Scores(values)
	require.Len(t, scores, len(values))
	for i, s := range scores {
		if i != 4 {
			assert.Less(t, s, scores[4])
		}
	}
	assert.Greater(t, scores[4], 0.5)

	marks := f.Detect(values)
	assert.Equal(t, []bool{false, false, false, false, true, false, false, false}, marks)

	assert.Equal(t, marks, NewIsolationForest(100, 0.1, 42).Detect(values), "seeded runs are reproducible")
}

func TestIsolationForest_NothingAboveHalf(t *testing.T) {
	marks := NewIsolationForest(50, 0.1, 7).Detect([]float64{3, 3, 3, 3})
	assert.Equal(t, []bool{false, false, false, false}, marks)
}
