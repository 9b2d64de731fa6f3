package indicator

import (
	"math"
	"sort"
	"testing"
)

func TestLevelsRequireMoreThanFiftyBars(t *testing.T) {
	window := risingCandles(50)
	if got := SupportLevels(window, DefaultClusterCount); got != nil {
		t.Errorf("SupportLevels on 50 bars = %v, want nil", got)
	}
	if got := ResistanceLevels(window, DefaultClusterCount); got != nil {
		t.Errorf("ResistanceLevels on 50 bars = %v, want nil", got)
	}
}

func TestLevelsCentroidCountAndOrder(t *testing.T) {
	window := risingCandles(100)

	supports := SupportLevels(window, DefaultClusterCount)
	if len(supports) != DefaultClusterCount {
		t.Fatalf("got %d support levels, want %d", len(supports), DefaultClusterCount)
	}
	if !sort.Float64sAreSorted(supports) {
		t.Errorf("support levels not sorted ascending: %v", supports)
	}

	resistances := ResistanceLevels(window, DefaultClusterCount)
	if len(resistances) != DefaultClusterCount {
		t.Fatalf("got %d resistance levels, want %d", len(resistances), DefaultClusterCount)
	}
	for i := range supports {
		if resistances[i] <= supports[i] {
			t.Errorf("resistance centroid %d (%v) not above support (%v)", i, resistances[i], supports[i])
		}
	}
}

func TestLevelsClusterAroundRepeatedPrices(t *testing.T) {
	// Lows alternate between two tight bands; two clusters must land near them.
	closes := make([]float64, 60)
	for i := range closes {
		if i%2 == 0 {
			closes[i] = 100
		} else {
			closes[i] = 200
		}
	}
	window := candlesFromCloses(closes...)

	levels := SupportLevels(window, 2)
	if len(levels) != 2 {
		t.Fatalf("got %d levels, want 2", len(levels))
	}
	if math.Abs(levels[0]-99.5) > 1 || math.Abs(levels[1]-199.5) > 1 {
		t.Errorf("centroids %v not near the two low bands", levels)
	}
}

func TestNearestLevel(t *testing.T) {
	levels := []float64{100, 150, 200}

	level, dist, ok := NearestLevel(148, levels)
	if !ok {
		t.Fatal("expected a nearest level")
	}
	if level != 150 {
		t.Errorf("nearest to 148 = %v, want 150", level)
	}
	if math.Abs(dist-2.0/148.0) > 1e-9 {
		t.Errorf("distance = %v, want 2/148", dist)
	}

	if _, _, ok := NearestLevel(100, nil); ok {
		t.Error("empty levels must not report a nearest level")
	}
	if _, _, ok := NearestLevel(0, levels); ok {
		t.Error("non-positive price must not report a nearest level")
	}
}
