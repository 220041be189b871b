// Package trend derives ordered views and moving averages from a snapshot of
// measurements. Nothing here touches storage.
package trend

import (
	"slices"
	"strings"

	"weighttracker/internal/domain"
)

// DefaultWindow is the moving-average window used for display.
const DefaultWindow = 7

// SortAscending returns a copy of ms ordered by date ascending. Entries that
// share a date keep their relative order.
func SortAscending(ms []domain.Measurement) []domain.Measurement {
	out := slices.Clone(ms)
	slices.SortStableFunc(out, func(a, b domain.Measurement) int {
		return strings.Compare(a.Date, b.Date)
	})
	return out
}

// FindByDate binary searches sorted (ascending by date) for an entry on date.
// The result is undefined if sorted is not actually sorted.
func FindByDate(sorted []domain.Measurement, date string) (domain.Measurement, bool) {
	lo, hi := 0, len(sorted)-1
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		switch c := strings.Compare(sorted[mid].Date, date); {
		case c == 0:
			return sorted[mid], true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return domain.Measurement{}, false
}

// MovingAverage returns the trailing mean of window consecutive weights for
// each right edge i in [window-1, len(sorted)-1]. It returns an empty slice
// when there are fewer than window entries or window < 1.
func MovingAverage(sorted []domain.Measurement, window int) []float64 {
	if window < 1 || len(sorted) < window {
		return []float64{}
	}
	out := make([]float64, 0, len(sorted)-window+1)
	for i := window - 1; i < len(sorted); i++ {
		var sum float64
		for _, m := range sorted[i-window+1 : i+1] {
			sum += m.Weight
		}
		out = append(out, sum/float64(window))
	}
	return out
}

// View is the ascending entries of one user with their moving average.
type View struct {
	Entries       []domain.Measurement `json:"entries"`
	MovingAverage []float64            `json:"movingAverage"`
	Window        int                  `json:"window"`
}

// Build sorts ms and computes the moving average over window.
func Build(ms []domain.Measurement, window int) View {
	sorted := SortAscending(ms)
	return View{
		Entries:       sorted,
		MovingAverage: MovingAverage(sorted, window),
		Window:        window,
	}
}
