package calendar

import "sort"

// Tier is the relative price band of a day.
type Tier string

const (
	TierCheap     Tier = "cheap"
	TierModerate  Tier = "moderate"
	TierExpensive Tier = "expensive"
)

// Thresholds returns the cheap and moderate upper bounds for a set of prices. Duplicates are
// ignored. With n distinct prices the bounds are sorted[min(n/3, n-2)] and
// sorted[min(2n/3, n-2)], so the maximum always lands above the moderate bound once n ≥ 2.
// A single distinct price is its own bound and ok is false only for an empty set.
func Thresholds(prices []int) (low, high int, ok bool) {
	seen := make(map[int]struct{}, len(prices))
	distinct := make([]int, 0, len(prices))
	for _, p := range prices {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		distinct = append(distinct, p)
	}

	n := len(distinct)
	switch n {
	case 0:
		return 0, 0, false
	case 1:
		return distinct[0], distinct[0], true
	}

	sort.Ints(distinct)
	low = distinct[min(n/3, n-2)]
	high = distinct[min(2*n/3, n-2)]
	return low, high, true
}

// Classify places price into a tier given the bounds from Thresholds.
func Classify(price, low, high int) Tier {
	switch {
	case price <= low:
		return TierCheap
	case price <= high:
		return TierModerate
	default:
		return TierExpensive
	}
}

// Bucketize assigns a tier to every date. Thresholds are derived from the given map on each call.
func Bucketize(prices map[string]int) map[string]Tier {
	out := make(map[string]Tier, len(prices))
	if len(prices) == 0 {
		return out
	}
	values := make([]int, 0, len(prices))
	for _, p := range prices {
		values = append(values, p)
	}
	low, high, _ := Thresholds(values)
	for date, p := range prices {
		out[date] = Classify(p, low, high)
	}
	return out
}
