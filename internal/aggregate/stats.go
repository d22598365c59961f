package aggregate

import (
	"math"
	"sort"
)

// percent returns count/total as a percentage rounded to one decimal,
// matching the summary table rendering so verification against the
// rendered value is exact.
func percent(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*1000) / 10
}

func meanMS(values []int64) int64 {
	if len(values) == 0 {
		return 0
	}
	var sum int64
	for _, v := range values {
		sum += v
	}
	return int64(math.Round(float64(sum) / float64(len(values))))
}

// medianMS takes the mean of the two middle values for even-length input.
func medianMS(values []int64) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return int64(math.Round(float64(sorted[mid-1]+sorted[mid]) / 2))
}
