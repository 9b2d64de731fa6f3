package indicator

import (
	"sort"

	"trading-advisor-bot/internal/market"
)

const (
	levelWindowBars  = 100
	levelMinBars     = 50
	levelIterations  = 16
	// DefaultClusterCount is the k used for support/resistance clustering.
	DefaultClusterCount = 5
)

// SupportLevels clusters the last 100 lows into at most k centroids and
// returns them sorted ascending. Windows of 50 bars or fewer yield no
// levels.
func SupportLevels(window []market.Candle, k int) []float64 {
	if len(window) <= levelMinBars {
		return nil
	}
	tail := market.Tail(window, levelWindowBars)
	values := make([]float64, len(tail))
	for i, c := range tail {
		values[i] = c.Low
	}
	return clusterLevels(values, k)
}

// ResistanceLevels clusters the last 100 highs into at most k centroids and
// returns them sorted ascending.
func ResistanceLevels(window []market.Candle, k int) []float64 {
	if len(window) <= levelMinBars {
		return nil
	}
	tail := market.Tail(window, levelWindowBars)
	values := make([]float64, len(tail))
	for i, c := range tail {
		values[i] = c.High
	}
	return clusterLevels(values, k)
}

// NearestLevel returns the level closest to price and its relative distance.
// ok is false when levels is empty.
func NearestLevel(price float64, levels []float64) (level float64, distance float64, ok bool) {
	if len(levels) == 0 || price <= 0 {
		return 0, 0, false
	}

	best := levels[0]
	bestDiff := abs(price - best)
	for _, l := range levels[1:] {
		if d := abs(price - l); d < bestDiff {
			best = l
			bestDiff = d
		}
	}
	return best, bestDiff / price, true
}

// clusterLevels runs 1-D k-means over values with quantile-seeded centroids.
// Always returns exactly min(k, len(values)) centroids, sorted ascending.
func clusterLevels(values []float64, k int) []float64 {
	if k <= 0 || len(values) == 0 {
		return nil
	}
	if k > len(values) {
		k = len(values)
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	// Quantile seeding keeps centroids spread over the price range.
	centroids := make([]float64, k)
	for i := 0; i < k; i++ {
		idx := (2*i + 1) * len(sorted) / (2 * k)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		centroids[i] = sorted[idx]
	}

	assignments := make([]int, len(sorted))
	for iter := 0; iter < levelIterations; iter++ {
		changed := false
		for i, v := range sorted {
			best := 0
			bestDiff := abs(v - centroids[0])
			for j := 1; j < k; j++ {
				if d := abs(v - centroids[j]); d < bestDiff {
					best = j
					bestDiff = d
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		sums := make([]float64, k)
		counts := make([]int, k)
		for i, v := range sorted {
			sums[assignments[i]] += v
			counts[assignments[i]]++
		}
		for j := 0; j < k; j++ {
			if counts[j] > 0 {
				centroids[j] = sums[j] / float64(counts[j])
			}
		}

		if !changed {
			break
		}
	}

	sort.Float64s(centroids)
	return centroids
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
