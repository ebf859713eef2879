package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"wombat/internal/model"
)

const (
	alaskaHomeURL = "https://www.alaskaair.com/"
	alaskaAPIURL  = "https://www.alaskaair.com/searchbff/V3/search"
	alaskaAPIPath = "/searchbff/V3/search"
)

var alaskaCabins = map[string]model.Cabin{
	"FIRST":    model.CabinBusiness,
	"BUSINESS": model.CabinBusiness,
	"MAIN":     model.CabinEconomy,
	"SAVER":    model.CabinEconomy,
	"COACH":    model.CabinEconomy,
}

// Analytics and ad hosts skipped while loading alaskaair.com.
var alaskaBlockedURLs = []string{
	"*cdn.appdynamics.com*",
	"*siteintercept.qualtrics.com*",
	"*dc.services.visualstudio.com*",
	"*js.adsrvr.org*",
	"*bing.com*",
	"*tiktok.com*",
	"*www.googletagmanager.com*",
	"*facebook.net*",
	"*demdex.net*",
	"*cdn.uplift-platform.com*",
	"*doubleclick.net*",
	"*www.google-analytics.com*",
	"*collect.tealiumiq.com*",
	"*quantummetric.com*",
	"*facebook.com*",
	"*app.securiti.ai*",
	"*cdn.optimizely.com*",
}

type alaskaResponse struct {
	Slices []alaskaSlice `json:"slices"`
}

type alaskaSlice struct {
	Segments []alaskaSegment `json:"segments"`
	Fares    alaskaFares     `json:"fares"`
}

type alaskaSegment struct {
	DepartureStation  string        `json:"departureStation"`
	ArrivalStation    string        `json:"arrivalStation"`
	DepartureTime     string        `json:"departureTime"`
	ArrivalTime       string        `json:"arrivalTime"`
	PublishingCarrier alaskaCarrier `json:"publishingCarrier"`
	Duration          flexMinutes   `json:"duration"`
	Aircraft          string        `json:"aircraft"`
	Amenities         []string      `json:"amenities"`
}

type alaskaCarrier struct {
	CarrierCode  string `json:"carrierCode"`
	FlightNumber string `json:"flightNumber"`
}

type alaskaFare struct {
	BookingCodes []string        `json:"bookingCodes"`
	Cabins       []string        `json:"cabins"`
	MilesPoints  int             `json:"milesPoints"`
	GrandTotal   decimal.Decimal `json:"grandTotal"`
}

// alaskaFares accepts either a list of fares or an object keyed by fare name, keeping
// the document order in both cases.
type alaskaFares []alaskaFare

func (f *alaskaFares) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*f = nil
		return nil
	case data[0] == '[':
		var list []alaskaFare
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*f = list
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	var list []alaskaFare
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return err
		}
		var fare alaskaFare
		if err := dec.Decode(&fare); err != nil {
			return err
		}
		list = append(list, fare)
	}
	*f = list
	return nil
}

// flexMinutes is a duration sent either as minutes or as a string like "2h30m".
type flexMinutes int

func (m *flexMinutes) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		v, err := n.Float64()
		if err != nil {
			return err
		}
		*m = flexMinutes(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*m = 0
		return nil
	}
	*m = flexMinutes(parseDuration(s))
	return nil
}

// parseDuration reads "95", "2h30m", "10h" or "45m" as minutes. Unparseable parts count as zero.
func parseDuration(s string) int {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	total := 0
	if h, rest, ok := strings.Cut(s, "h"); ok {
		n, _ := strconv.Atoi(strings.TrimSpace(h))
		total += n * 60
		s = rest
	}
	if m, _, ok := strings.Cut(s, "m"); ok {
		n, _ := strconv.Atoi(strings.TrimSpace(m))
		total += n
	}
	return total
}

// AlaskaClient searches Alaska Atmos Rewards award space.
type AlaskaClient struct {
	base
	maxStops int
}

func NewAlaskaClient(b base, maxStops int) *AlaskaClient {
	return &AlaskaClient{base: b, maxStops: maxStops}
}

func (a *AlaskaClient) Program() model.Program {
	return model.ProgramAlaska
}

// Search loads the award search API through the browser and parses its JSON.
func (a *AlaskaClient) Search(ctx context.Context, q Query) ([]model.Flight, error) {
	q = q.Normalize()
	maxStops := a.maxStops
	if q.MaxStops > maxStops {
		maxStops = q.MaxStops
	}

	params := url.Values{}
	params.Set("origins", q.Origin)
	params.Set("destinations", q.Destination)
	params.Set("dates", q.Date)
	params.Set("numADTs", "1")
	params.Set("fareView", "as_awards")
	params.Set("sessionID", "")
	params.Set("solutionSetIDs", "")
	params.Set("solutionIDs", "")

	a.logger.Info("AlaskaClient: searching", "origin", q.Origin, "destination", q.Destination, "date", q.Date)
	body, err := a.fetch(ctx, FetchRequest{
		WarmupURL: alaskaHomeURL,
		URL:       alaskaAPIURL + "?" + params.Encode(),
		Match:     func(u string) bool { return strings.Contains(u, alaskaAPIPath) },
		Block:     alaskaBlockedURLs,
	})
	if err != nil {
		return nil, searchError(a.Program(), err)
	}

	flights, err := ParseAlaska(body, q.Origin, q.Destination, maxStops)
	if err != nil {
		return nil, searchError(a.Program(), err)
	}
	if len(flights) == 0 {
		a.logger.Info("AlaskaClient: no scheduled flights between cities", "origin", q.Origin, "destination", q.Destination)
	}
	return filterCabin(flights, q.Cabin), nil
}

// ParseAlaska converts an Alaska search response into flights from origin to destination
// with at most maxStops stops.
func ParseAlaska(body []byte, origin, destination string, maxStops int) ([]model.Flight, error) {
	var resp alaskaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode alaska response: %w", err)
	}

	var flights []model.Flight
	for _, slice := range resp.Slices {
		if len(slice.Segments) == 0 || len(slice.Segments)-1 > maxStops {
			continue
		}
		first, last := slice.Segments[0], slice.Segments[len(slice.Segments)-1]
		if first.DepartureStation != origin || last.ArrivalStation != destination {
			continue
		}

		flight := alaskaFlight(slice.Segments)

		fares := make([]model.FlightFare, 0, len(slice.Fares))
		for _, fd := range slice.Fares {
			if len(fd.BookingCodes) == 0 || len(fd.Cabins) == 0 {
				continue
			}
			cabin, ok := alaskaCabins[fd.Cabins[0]]
			if !ok {
				cabin = model.CabinEconomy
			}
			fares = append(fares, model.FlightFare{
				Miles:        fd.MilesPoints,
				Cash:         fd.GrandTotal,
				Cabin:        cabin,
				BookingClass: fd.BookingCodes[0],
				Program:      model.ProgramAlaska,
				IsSaver:      fd.Cabins[0] == "SAVER",
			})
		}

		flight = flight.WithFares(fares)
		if len(flight.Fares) > 0 {
			flights = append(flights, flight)
		}
	}
	return flights, nil
}

func alaskaFlight(raw []alaskaSegment) model.Flight {
	segments := make([]model.Segment, 0, len(raw))
	flightNos := make([]string, 0, len(raw))
	var aircraft []string
	seenAircraft := make(map[string]bool)
	total := 0
	allWifi, anyKnown := true, false

	for _, s := range raw {
		no := strings.TrimSpace(s.PublishingCarrier.CarrierCode + " " + s.PublishingCarrier.FlightNumber)

		var wifi *bool
		if len(s.Amenities) > 0 {
			has := false
			for _, a := range s.Amenities {
				if a == "Wi-Fi" {
					has = true
					break
				}
			}
			wifi = &has
			anyKnown = true
			if !has {
				allWifi = false
			}
		}

		craft := s.Aircraft
		if craft == "" {
			craft = "Unknown"
		}
		if !seenAircraft[craft] {
			seenAircraft[craft] = true
			aircraft = append(aircraft, craft)
		}

		total += int(s.Duration)
		flightNos = append(flightNos, no)
		segments = append(segments, model.Segment{
			FlightNo:    no,
			Origin:      s.DepartureStation,
			Destination: s.ArrivalStation,
			Departure:   parseLocalTime(s.DepartureTime),
			Arrival:     parseLocalTime(s.ArrivalTime),
			Duration:    int(s.Duration),
			Aircraft:    craft,
			HasWifi:     wifi,
		})
	}

	var hasWifi *bool
	if anyKnown {
		hasWifi = &allWifi
	}

	return model.Flight{
		FlightNo:    strings.Join(flightNos, " → "),
		Origin:      segments[0].Origin,
		Destination: segments[len(segments)-1].Destination,
		Departure:   segments[0].Departure,
		Arrival:     segments[len(segments)-1].Arrival,
		Duration:    total,
		Aircraft:    strings.Join(aircraft, ", "),
		HasWifi:     hasWifi,
		Segments:    segments,
	}
}
