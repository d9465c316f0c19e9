// Package search holds the distance metrics and ranking used by vector search.
package search

import (
	"fmt"
	"math"
	"strings"
)

// DistanceColumn is the column appended to search results.
const DistanceColumn = "_distance"

// Metric selects how query and stored vectors are compared. Lower distances
// rank first for every metric.
type Metric string

// Metric values.
const (
	// MetricCosine is 1 - cosine similarity, in [0, 2].
	MetricCosine Metric = "cosine"
	// MetricL2 is the squared Euclidean distance.
	MetricL2 Metric = "l2"
	// MetricDot is 1 - dot product, for normalized vectors.
	MetricDot Metric = "dot"
)

// ParseMetric parses a metric name. The empty string means MetricCosine.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case "", MetricCosine:
		return MetricCosine, nil
	case MetricL2, "euclidean":
		return MetricL2, nil
	case MetricDot:
		return MetricDot, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

// Distance returns the distance between a and b. Vectors of different
// lengths are infinitely far apart.
func (m Metric) Distance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	switch m {
	case MetricL2:
		return L2Distance(a, b)
	case MetricDot:
		return 1 - DotProduct(a, b)
	default:
		return 1 - CosineSimilarity(a, b)
	}
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either is a zero vector or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		magA += x * x
		magB += y * y
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// L2Distance returns the squared Euclidean distance between a and b.
func L2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// DotProduct returns the inner product of a and b.
func DotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
