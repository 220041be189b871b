package trend_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weighttracker/internal/domain"
	"weighttracker/internal/trend"
)

func series(weights ...float64) []domain.Measurement {
	out := make([]domain.Measurement, len(weights))
	for i, w := range weights {
		out[i] = domain.Measurement{
			ID:     int64(i + 1),
			Date:   fmt.Sprintf("2024-01-%02d", i+1),
			Weight: w,
		}
	}
	return out
}

func TestSortAscending(t *testing.T) {
	in := []domain.Measurement{
		{ID: 1, Date: "2024-01-03"},
		{ID: 2, Date: "2024-01-01"},
		{ID: 3, Date: "2024-01-02"},
		{ID: 4, Date: "2024-01-01"},
	}

	got := trend.SortAscending(in)

	ids := make([]int64, len(got))
	for i, m := range got {
		ids[i] = m.ID
	}
	assert.Equal(t, []int64{2, 4, 3, 1}, ids, "ties keep input order")
	assert.Equal(t, int64(1), in[0].ID, "input must not be reordered")
}

func TestMovingAverage_TooFewEntries(t *testing.T) {
	got := trend.MovingAverage(series(200, 199, 198, 197, 196, 195), trend.DefaultWindow)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	assert.Empty(t, trend.MovingAverage(nil, trend.DefaultWindow))
	assert.Empty(t, trend.MovingAverage(series(1, 2, 3), 0))
}

func TestMovingAverage_ExactWindow(t *testing.T) {
	got := trend.MovingAverage(series(180, 181, 182, 183, 184, 185, 186), 7)
	require.Len(t, got, 1)
	assert.InDelta(t, 183.0, got[0], 1e-9)
}

func TestMovingAverage_TenDays(t *testing.T) {
	sorted := series(200, 199, 198, 197, 196, 195, 194, 193, 192, 191)

	got := trend.MovingAverage(sorted, 7)

	require.Len(t, got, 4)
	assert.Equal(t, 197.0, got[0])
	assert.Equal(t, 196.0, got[1])
	assert.Equal(t, 195.0, got[2])
	assert.Equal(t, 194.0, got[3])
}

// oldestFirst is the reference mean: each window summed in date order.
func oldestFirst(weights []float64, window int) []float64 {
	var out []float64
	for i := window - 1; i < len(weights); i++ {
		var sum float64
		for _, w := range weights[i-window+1 : i+1] {
			sum += w
		}
		out = append(out, sum/float64(window))
	}
	return out
}

func TestMovingAverage_SumsOldestFirst(t *testing.T) {
	weights := []float64{130.1, 131.7, 132.3, 131.9, 133.05, 131.2, 132.84, 130.6, 131.35, 132.9, 130.25, 131.75}

	got := trend.MovingAverage(series(weights...), 7)

	require.Len(t, got, 6)
	assert.Equal(t, oldestFirst(weights, 7), got)
}

func TestMovingAverage_MatchesReferenceExactly(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	weights := make([]float64, 50)
	for i := range weights {
		weights[i] = 20 + r.Float64()*280
	}

	got := trend.MovingAverage(series(weights...), 5)

	require.Len(t, got, len(weights)-5+1)
	assert.Equal(t, oldestFirst(weights, 5), got)
}

func TestFindByDate(t *testing.T) {
	sorted := series(200, 199, 198, 197, 196)

	m, ok := trend.FindByDate(sorted, "2024-01-04")
	require.True(t, ok)
	assert.Equal(t, 197.0, m.Weight)

	_, ok = trend.FindByDate(sorted, "2024-02-01")
	assert.False(t, ok)

	_, ok = trend.FindByDate(nil, "2024-01-01")
	assert.False(t, ok)
}

func TestFindByDate_AgreesWithLinearScan(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		var in []domain.Measurement
		n := r.Intn(20)
		for i := 0; i < n; i++ {
			in = append(in, domain.Measurement{Date: fmt.Sprintf("2024-01-%02d", 1+r.Intn(28))})
		}
		sorted := trend.SortAscending(in)

		for day := 1; day <= 28; day++ {
			target := fmt.Sprintf("2024-01-%02d", day)
			want := false
			for _, m := range sorted {
				if m.Date == target {
					want = true
					break
				}
			}
			m, ok := trend.FindByDate(sorted, target)
			assert.Equal(t, want, ok, "round %d target %s", round, target)
			if ok {
				assert.Equal(t, target, m.Date)
			}
		}
	}
}

func TestBuild(t *testing.T) {
	in := series(200, 199, 198, 197, 196, 195, 194)
	// Reverse to mimic the store's date-descending order.
	for i, j := 0, len(in)-1; i < j; i, j = i+1, j-1 {
		in[i], in[j] = in[j], in[i]
	}

	v := trend.Build(in, trend.DefaultWindow)

	assert.Equal(t, "2024-01-01", v.Entries[0].Date)
	assert.Equal(t, trend.DefaultWindow, v.Window)
	require.Len(t, v.MovingAverage, 1)
	assert.InDelta(t, 197.0, v.MovingAverage[0], 1e-9)
}
