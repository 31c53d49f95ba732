// Package analytics holds the pure transforms that turn raw protocol data
// into chart series.
package analytics

import (
	"sort"
	"time"
)

// Point is one sample of a time series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// SortByTime orders points oldest first, in place.
func SortByTime(points []Point) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
}

// Values extracts the values of points in order.
func Values(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

// MovingAverage returns a slice the length of values where element i is the
// mean of values[max(0, i-window-1) .. i] inclusive. The lower bound is one
// wider than a plain trailing window; charts already published depend on it.
// A non-positive window returns a copy of values.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 0 {
		copy(out, values)
		return out
	}

	for i := range values {
		lo := max(i-window-1, 0)
		// Summing deviations from the first value keeps a constant run exact.
		ref := values[lo]
		var dev float64
		for _, v := range values[lo : i+1] {
			dev += v - ref
		}
		out[i] = ref + dev/float64(i-lo+1)
	}
	return out
}

// MovingAverageSeries applies MovingAverage to the values of points and
// keeps their timestamps.
func MovingAverageSeries(points []Point, window int) []Point {
	avg := MovingAverage(Values(points), window)
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = Point{Timestamp: p.Timestamp, Value: avg[i]}
	}
	return out
}

// Last returns the newest value of an ordered series.
func Last(points []Point) (float64, bool) {
	if len(points) == 0 {
		return 0, false
	}
	return points[len(points)-1].Value, true
}
