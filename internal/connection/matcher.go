package connection

import (
	"fmt"
	"sort"
	"time"

	"wombat/internal/model"
)

const (
	// DefaultMinLayover is the shortest connection accepted unless overridden.
	DefaultMinLayover = 2 * time.Hour
	// DefaultMaxLayover is the longest connection accepted unless overridden.
	DefaultMaxLayover = 24 * time.Hour
)

// FindConnections pairs flights from the first leg with flights from the second leg that depart
// from the same airport within [minLayover, maxLayover] of arrival. Each leg contributes its
// cheapest fare, restricted to cabin when cabin is not empty. Results are sorted by total miles;
// equal totals keep the order in which pairs were enumerated.
func FindConnections(first, second []model.Flight, minLayover, maxLayover time.Duration, cabin model.Cabin) []model.ConnectionItinerary {
	var out []model.ConnectionItinerary

	for _, f1 := range first {
		fare1, ok := f1.BestFare(cabin)
		if !ok {
			continue
		}
		for _, f2 := range second {
			layover := f2.Departure.Sub(f1.Arrival)
			if layover < minLayover || layover > maxLayover {
				continue
			}
			if f1.Destination != f2.Origin {
				continue
			}
			fare2, ok := f2.BestFare(cabin)
			if !ok {
				continue
			}

			layoverMinutes := int(layover / time.Minute)
			out = append(out, model.ConnectionItinerary{
				FirstSegment:         f1,
				SecondSegment:        f2,
				LayoverMinutes:       layoverMinutes,
				TotalMiles:           fare1.Miles + fare2.Miles,
				TotalCash:            fare1.Cash.Add(fare2.Cash),
				TotalDurationMinutes: f1.Duration + f2.Duration + layoverMinutes,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalMiles < out[j].TotalMiles
	})
	return out
}

// FormatDuration renders minutes as "3h 0m", or "45m" below an hour.
func FormatDuration(minutes int) string {
	h, m := minutes/60, minutes%60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
