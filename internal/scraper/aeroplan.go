package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"wombat/internal/model"
)

const aeroplanSearchURL = "https://www.aircanada.com/aeroplan/redeem/availability/outbound"

var aeroplanCabins = map[string]model.Cabin{
	"eco":        model.CabinEconomy,
	"ecoPremium": model.CabinEconomy,
	"business":   model.CabinBusiness,
	"first":      model.CabinFirst,
}

type aeroplanResponse struct {
	Data         *aeroplanData        `json:"data"`
	Dictionaries aeroplanDictionaries `json:"dictionaries"`
	Errors       []aeroplanError      `json:"errors"`
}

type aeroplanError struct {
	Title string `json:"title"`
}

type aeroplanData struct {
	AirBoundGroups []aeroplanGroup `json:"airBoundGroups"`
}

type aeroplanGroup struct {
	BoundDetails struct {
		Segments []struct {
			FlightID string `json:"flightId"`
		} `json:"segments"`
	} `json:"boundDetails"`
	AirBounds []aeroplanAirBound `json:"airBounds"`
}

type aeroplanAirBound struct {
	AvailabilityDetails []struct {
		Cabin        string `json:"cabin"`
		BookingClass string `json:"bookingClass"`
	} `json:"availabilityDetails"`
	Prices struct {
		MilesConversion struct {
			ConvertedMiles struct {
				Base       int   `json:"base"`
				TotalTaxes int64 `json:"totalTaxes"` // cents
			} `json:"convertedMiles"`
			RemainingNonConverted struct {
				CurrencyCode string `json:"currencyCode"`
			} `json:"remainingNonConverted"`
		} `json:"milesConversion"`
	} `json:"prices"`
}

type aeroplanDictionaries struct {
	Flight   map[string]aeroplanFlightInfo `json:"flight"`
	Aircraft map[string]string             `json:"aircraft"`
}

type aeroplanLocation struct {
	LocationCode string `json:"locationCode"`
	DateTime     string `json:"dateTime"`
}

type aeroplanFlightInfo struct {
	Departure             aeroplanLocation `json:"departure"`
	Arrival               aeroplanLocation `json:"arrival"`
	MarketingAirlineCode  string           `json:"marketingAirlineCode"`
	MarketingFlightNumber string           `json:"marketingFlightNumber"`
	AircraftCode          string           `json:"aircraftCode"`
	Duration              int              `json:"duration"` // seconds
}

// AeroplanClient searches Air Canada Aeroplan award space. Only nonstop flights are returned.
type AeroplanClient struct {
	base
}

func NewAeroplanClient(b base) *AeroplanClient {
	return &AeroplanClient{base: b}
}

func (c *AeroplanClient) Program() model.Program {
	return model.ProgramAeroplan
}

func (c *AeroplanClient) Search(ctx context.Context, q Query) ([]model.Flight, error) {
	q = q.Normalize()

	params := url.Values{}
	params.Set("org0", q.Origin)
	params.Set("dest0", q.Destination)
	params.Set("departureDate0", q.Date)
	params.Set("lang", "en-CA")
	params.Set("tripType", "O")
	params.Set("ADT", "1")
	params.Set("YTH", "0")
	params.Set("CHD", "0")
	params.Set("INF", "0")
	params.Set("INS", "0")
	params.Set("marketCode", "TNB")

	c.logger.Info("AeroplanClient: searching", "origin", q.Origin, "destination", q.Destination, "date", q.Date)
	body, err := c.fetch(ctx, FetchRequest{
		URL: aeroplanSearchURL + "?" + params.Encode(),
		Match: func(u string) bool {
			return strings.Contains(u, "/loyalty/dapidynamic/") && strings.Contains(u, "/v2/search/air-bounds")
		},
	})
	if err != nil {
		return nil, searchError(c.Program(), err)
	}

	flights, apiErrs, err := ParseAeroplan(body, q.Origin, q.Destination)
	if err != nil {
		return nil, searchError(c.Program(), err)
	}
	for _, e := range apiErrs {
		c.logger.Warn("AeroplanClient: API error", "title", e)
	}
	return filterCabin(flights, q.Cabin), nil
}

// ParseAeroplan converts an Aeroplan air-bounds response into nonstop flights. Errors reported
// by the API are returned as titles alongside an empty flight list.
func ParseAeroplan(body []byte, origin, destination string) ([]model.Flight, []string, error) {
	var resp aeroplanResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, fmt.Errorf("decode aeroplan response: %w", err)
	}
	if len(resp.Errors) > 0 {
		titles := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			title := e.Title
			if title == "" {
				title = "Unknown error"
			}
			titles = append(titles, title)
		}
		return nil, titles, nil
	}
	if resp.Data == nil {
		return nil, nil, nil
	}

	var flights []model.Flight
	for _, group := range resp.Data.AirBoundGroups {
		if len(group.BoundDetails.Segments) != 1 {
			continue
		}
		info, ok := resp.Dictionaries.Flight[group.BoundDetails.Segments[0].FlightID]
		if !ok {
			continue
		}
		if info.Departure.LocationCode != origin || info.Arrival.LocationCode != destination {
			continue
		}

		airline := info.MarketingAirlineCode
		aircraft := info.AircraftCode
		if name, ok := resp.Dictionaries.Aircraft[info.AircraftCode]; ok {
			aircraft = name
		}
		if aircraft == "" {
			aircraft = "Unknown"
		}
		duration := 0
		if info.Duration > 0 {
			duration = info.Duration / 60
		}

		flight := model.Flight{
			FlightNo:    strings.TrimSpace(airline + " " + info.MarketingFlightNumber),
			Origin:      info.Departure.LocationCode,
			Destination: info.Arrival.LocationCode,
			Departure:   parseLocalTime(info.Departure.DateTime),
			Arrival:     parseLocalTime(info.Arrival.DateTime),
			Duration:    duration,
			Aircraft:    aircraft,
		}

		fares := make([]model.FlightFare, 0, len(group.AirBounds))
		for _, ab := range group.AirBounds {
			if len(ab.AvailabilityDetails) == 0 {
				continue
			}
			detail := ab.AvailabilityDetails[0]
			cabinCode := detail.Cabin
			if cabinCode == "" {
				cabinCode = "eco"
			}
			cabin, ok := aeroplanCabins[cabinCode]
			if !ok {
				cabin = model.CabinEconomy
			}
			bookingClass := detail.BookingClass
			if bookingClass == "" {
				bookingClass = "?"
			}
			// UA I class is priced as economy.
			if bookingClass == "I" && airline == "UA" {
				cabin = model.CabinEconomy
			}

			converted := ab.Prices.MilesConversion.ConvertedMiles
			fares = append(fares, model.FlightFare{
				Miles:        converted.Base,
				Cash:         decimal.New(converted.TotalTaxes, -2),
				Cabin:        cabin,
				BookingClass: bookingClass,
				Program:      model.ProgramAeroplan,
			})
		}

		flight = flight.WithFares(fares)
		if len(flight.Fares) > 0 {
			flights = append(flights, flight)
		}
	}
	return flights, nil, nil
}
