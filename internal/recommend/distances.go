package recommend

import "strings"

// DefaultDistance is the distance assumed for routes missing from the table.
const DefaultDistance = 4000

type routeKey struct{ origin, destination string }

// distances holds approximate great-circle miles from the West Coast hubs.
var distances = map[routeKey]int{
	// Asia
	{"SFO", "NRT"}: 5140,
	{"SFO", "HND"}: 5140,
	{"SFO", "ICN"}: 5963,
	{"SFO", "HKG"}: 6927,
	{"SFO", "SIN"}: 8447,
	{"SFO", "TPE"}: 6804,
	{"SFO", "BKK"}: 7928,
	{"SFO", "DEL"}: 7706,
	{"LAX", "NRT"}: 5478,
	{"LAX", "HND"}: 5478,
	{"LAX", "ICN"}: 6000,
	{"LAX", "HKG"}: 7260,
	{"LAX", "SIN"}: 8770,
	{"LAX", "TPE"}: 6800,
	{"LAX", "BKK"}: 8150,
	{"LAX", "DEL"}: 8000,
	// Europe
	{"SFO", "LHR"}: 5367,
	{"SFO", "CDG"}: 5570,
	{"SFO", "FRA"}: 5682,
	{"SFO", "AMS"}: 5583,
	{"SFO", "FCO"}: 6269,
	{"SFO", "BCN"}: 5979,
	{"SFO", "ZRH"}: 5801,
	{"SFO", "CPH"}: 5421,
	{"LAX", "LHR"}: 5456,
	{"LAX", "CDG"}: 5660,
	{"LAX", "FRA"}: 5770,
	{"LAX", "AMS"}: 5670,
	{"LAX", "FCO"}: 6350,
	{"LAX", "BCN"}: 6070,
	{"LAX", "ZRH"}: 5890,
	{"LAX", "CPH"}: 5510,
	// Oceania
	{"SFO", "SYD"}: 7416,
	{"SFO", "MEL"}: 7920,
	{"SFO", "AKL"}: 6510,
	{"LAX", "SYD"}: 7488,
	{"LAX", "MEL"}: 7920,
	{"LAX", "AKL"}: 6520,
	// Domestic
	{"SFO", "JFK"}: 2586,
	{"SFO", "BOS"}: 2704,
	{"SFO", "MIA"}: 2590,
	{"SFO", "LAX"}: 337,
	{"SFO", "SEA"}: 679,
	{"LAX", "JFK"}: 2475,
	{"LAX", "BOS"}: 2611,
	{"LAX", "MIA"}: 2342,
	{"LAX", "SEA"}: 954,
	// Seattle
	{"SEA", "NRT"}: 4783,
	{"SEA", "HND"}: 4783,
	{"SEA", "ICN"}: 5217,
	{"SEA", "HKG"}: 6485,
	{"SEA", "LHR"}: 4800,
	{"SEA", "CDG"}: 5020,
}

// Distance returns the flight distance in miles between two airports, checking both directions
// and falling back to DefaultDistance.
func Distance(origin, destination string) int {
	o, d := strings.ToUpper(origin), strings.ToUpper(destination)
	if miles, ok := distances[routeKey{o, d}]; ok {
		return miles
	}
	if miles, ok := distances[routeKey{d, o}]; ok {
		return miles
	}
	return DefaultDistance
}

// Regions lists the region names understood by DestinationsByRegion, in display order.
var Regions = []string{"asia", "europe", "oceania", "domestic"}

var popularDestinations = map[string][]string{
	"asia":     {"NRT", "HND", "ICN", "HKG", "SIN", "TPE", "BKK", "DEL"},
	"europe":   {"LHR", "CDG", "FRA", "AMS", "FCO", "BCN", "ZRH", "CPH"},
	"oceania":  {"SYD", "MEL", "AKL"},
	"domestic": {"JFK", "BOS", "MIA", "LAX", "SEA"},
}

// DestinationsByRegion returns popular destinations for a region, or every region when the name
// is empty or unknown. A positive limit truncates the list.
func DestinationsByRegion(region string, limit int) []string {
	var out []string
	if dests, ok := popularDestinations[strings.ToLower(region)]; ok {
		out = append(out, dests...)
	} else {
		for _, r := range Regions {
			out = append(out, popularDestinations[r]...)
		}
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}
