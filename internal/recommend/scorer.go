package recommend

import (
	"sort"

	"wombat/internal/model"
)

const (
	// BudgetPenalty is subtracted from fares that exceed the caller's mile budget.
	BudgetPenalty = 1000.0
	// CashPenaltyFactor weighs the cash paid per award mile.
	CashPenaltyFactor = 0.5
)

// Candidate is one flight found for a route and date.
type Candidate struct {
	Origin      string
	Destination string
	Date        string
	Flight      model.Flight
}

// CandidatesFromResults flattens search results into scoring candidates.
func CandidatesFromResults(results []model.SearchResult) []Candidate {
	var out []Candidate
	for _, r := range results {
		for _, f := range r.Flights {
			out = append(out, Candidate{Origin: r.Origin, Destination: r.Destination, Date: r.Date, Flight: f})
		}
	}
	return out
}

// Recommendation is a scored award redemption.
type Recommendation struct {
	Origin             string           `json:"origin"`
	Destination        string           `json:"destination"`
	Date               string           `json:"date"`
	Flight             model.Flight     `json:"flight"`
	Fare               model.FlightFare `json:"fare"`
	Score              float64          `json:"score"`
	DistanceMiles      int              `json:"distance_miles"`
	CashPerMile        float64          `json:"cash_per_mile"`
	CentsPerFlightMile float64          `json:"cents_per_flight_mile"`
	CabinMultiplier    float64          `json:"cabin_multiplier"`
}

// RankFilter narrows the candidate fares. Zero values disable a filter.
type RankFilter struct {
	Cabin    model.Cabin
	Program  model.Program
	MaxMiles int
}

// CabinMultiplier returns the value weight of a cabin.
func CabinMultiplier(cabin model.Cabin) float64 {
	switch cabin {
	case model.CabinFirst:
		return 3.0
	case model.CabinBusiness:
		return 2.5
	default:
		return 1.0
	}
}

// ratios returns cash cents per flight mile and per award mile. A zero denominator yields 0.
func ratios(fare model.FlightFare, distance int) (perFlightMile, perAwardMile float64) {
	cents := fare.CashCents()
	if distance > 0 {
		perFlightMile = cents / float64(distance)
	}
	if fare.Miles > 0 {
		perAwardMile = cents / float64(fare.Miles)
	}
	return
}

// CalculateScore rates a redemption: distance times cabin multiplier per award mile, less half the
// cash cents per award mile, less BudgetPenalty when the fare exceeds maxMiles (0 means no
// budget). The score is never negative.
func CalculateScore(fare model.FlightFare, distance int, maxMiles int) float64 {
	base := 0.0
	if fare.Miles > 0 {
		base = float64(distance) * CabinMultiplier(fare.Cabin) / float64(fare.Miles)
	}
	_, perAwardMile := ratios(fare, distance)
	cashPenalty := perAwardMile * CashPenaltyFactor

	budgetPenalty := 0.0
	if maxMiles > 0 && fare.Miles > maxMiles {
		budgetPenalty = BudgetPenalty
	}

	score := base - cashPenalty - budgetPenalty
	if score < 0 {
		return 0
	}
	return score
}

// RankRedemptions scores every fare that passes the filter and returns them best first.
// Equal scores keep their input order.
func RankRedemptions(candidates []Candidate, filter RankFilter) []Recommendation {
	var out []Recommendation
	for _, c := range candidates {
		distance := Distance(c.Origin, c.Destination)
		for _, fare := range c.Flight.Fares {
			if filter.Cabin != "" && fare.Cabin != filter.Cabin {
				continue
			}
			if filter.Program != "" && fare.Program != filter.Program {
				continue
			}
			if filter.MaxMiles > 0 && fare.Miles > filter.MaxMiles {
				continue
			}

			perFlightMile, perAwardMile := ratios(fare, distance)
			out = append(out, Recommendation{
				Origin:             c.Origin,
				Destination:        c.Destination,
				Date:               c.Date,
				Flight:             c.Flight,
				Fare:               fare,
				Score:              CalculateScore(fare, distance, filter.MaxMiles),
				DistanceMiles:      distance,
				CashPerMile:        perAwardMile,
				CentsPerFlightMile: perFlightMile,
				CabinMultiplier:    CabinMultiplier(fare.Cabin),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
