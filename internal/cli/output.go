package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"wombat/internal/calendar"
	"wombat/internal/connection"
	"wombat/internal/history"
	"wombat/internal/model"
	"wombat/internal/recommend"
)

const noValue = "–"

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func row(tw *tabwriter.Writer, cols ...string) {
	fmt.Fprintln(tw, strings.Join(cols, "\t"))
}

func miles(n int) string {
	if n <= 0 {
		return noValue
	}
	return model.FormatMiles(n)
}

func clock(t time.Time) string {
	if t.IsZero() {
		return noValue
	}
	return t.Format("15:04")
}

func wifi(v *bool) string {
	switch {
	case v == nil:
		return noValue
	case *v:
		return "yes"
	default:
		return "no"
	}
}

func stops(n int) string {
	switch n {
	case 0:
		return "direct"
	case 1:
		return "1 stop"
	default:
		return fmt.Sprintf("%d stops", n)
	}
}

func firstOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func cabinLabel(c model.Cabin) string {
	if c == "" {
		return "All Cabins"
	}
	return c.Display()
}

// cabinRank orders premium cabins ahead of economy.
func cabinRank(c model.Cabin) int {
	switch c {
	case model.CabinBusiness, model.CabinFirst:
		return 0
	case model.CabinEconomy:
		return 1
	}
	return 2
}

// printResult renders one date's flights, cheapest first, one row per fare.
func printResult(w io.Writer, r model.SearchResult, cabin model.Cabin) {
	if len(r.Flights) == 0 {
		if len(r.Errors) > 0 {
			for _, e := range r.Errors {
				fmt.Fprintf(w, "! %s\n", e)
			}
			return
		}
		fmt.Fprintf(w, "No award availability found for %s → %s on %s\n", r.Origin, r.Destination, r.Date)
		return
	}

	flights := append([]model.Flight(nil), r.Flights...)
	sort.SliceStable(flights, func(i, j int) bool {
		return bestMiles(flights[i], cabin) < bestMiles(flights[j], cabin)
	})

	title := fmt.Sprintf("%s → %s  |  %s", r.Origin, r.Destination, r.Date)
	if cabin != "" {
		title += "  |  " + cabin.Display() + " class"
	}
	fmt.Fprintf(w, "\n%s\n", title)

	tw := newTable(w)
	row(tw, "FLIGHT", "DEPARTS", "ARRIVES", "DURATION", "STOPS", "AIRCRAFT", "MILES", "TAXES", "CABIN", "PROGRAM", "WIFI")
	for _, f := range flights {
		fares := append([]model.FlightFare(nil), f.FilterCabin(cabin).Fares...)
		sort.SliceStable(fares, func(i, j int) bool {
			if cabinRank(fares[i].Cabin) != cabinRank(fares[j].Cabin) {
				return cabinRank(fares[i].Cabin) < cabinRank(fares[j].Cabin)
			}
			return fares[i].Miles < fares[j].Miles
		})
		for i, fare := range fares {
			price := []string{miles(fare.Miles), "$" + fare.Cash.StringFixed(2), fare.Cabin.Display(), string(fare.Program)}
			if i == 0 {
				row(tw, append(append([]string{
					f.FlightNo, clock(f.Departure), clock(f.Arrival), f.FormatDuration(), stops(f.Stops()), firstOr(f.Aircraft, noValue),
				}, price...), wifi(f.HasWifi))...)
				continue
			}
			row(tw, append(append([]string{"", "", "", "", "", ""}, price...), "")...)
		}
	}
	tw.Flush()

	if len(flights) == 1 {
		fmt.Fprintln(w, "1 flight found.")
	} else {
		fmt.Fprintf(w, "%d flights found.\n", len(flights))
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "! %s\n", e)
	}
}

func bestMiles(f model.Flight, cabin model.Cabin) int {
	fare, ok := f.BestFare(cabin)
	if !ok {
		return int(^uint(0) >> 1)
	}
	return fare.Miles
}

// printSummary renders the best business and economy miles per date.
func printSummary(w io.Writer, results []model.SearchResult, cabin model.Cabin) {
	fmt.Fprintln(w, "\nAward Availability Summary")
	tw := newTable(w)
	row(tw, "DATE", "FLIGHTS", "BEST BUSINESS", "BEST ECONOMY", "PROGRAMS")
	for _, r := range results {
		var biz, eco, count int
		programs := map[string]bool{}
		for _, f := range r.Flights {
			if _, ok := f.BestFare(cabin); !ok {
				continue
			}
			count++
			for _, fare := range f.Fares {
				programs[string(fare.Program)] = true
				switch fare.Cabin {
				case model.CabinBusiness:
					if biz == 0 || fare.Miles < biz {
						biz = fare.Miles
					}
				case model.CabinEconomy:
					if eco == 0 || fare.Miles < eco {
						eco = fare.Miles
					}
				}
			}
		}
		names := make([]string, 0, len(programs))
		for p := range programs {
			names = append(names, p)
		}
		sort.Strings(names)
		row(tw, r.Date, strconv.Itoa(count), miles(biz), miles(eco), firstOr(strings.Join(names, ", "), noValue))
	}
	tw.Flush()
}

func printNewLows(w io.Writer, lows []history.NewLow) {
	if len(lows) == 0 {
		return
	}
	fmt.Fprintln(w, "\nNew price low detected!")
	for _, l := range lows {
		fmt.Fprintf(w, "  %s on %s (%s, %s): %s miles (was %s, down %.1f%%)\n",
			l.Route, l.FlightDate, l.Cabin.Display(), l.Program, model.FormatMiles(l.NewMiles), model.FormatMiles(l.OldMiles), l.DropPct)
	}
}

var tierMarks = map[calendar.Tier]string{
	calendar.TierCheap:     "+",
	calendar.TierModerate:  "~",
	calendar.TierExpensive: "!",
}

func kMiles(n int) string {
	if n%1000 == 0 {
		return fmt.Sprintf("%dk", n/1000)
	}
	return strconv.FormatFloat(float64(n)/1000, 'f', 1, 64) + "k"
}

func calendarCell(c calendar.Cell) string {
	switch {
	case c.Day == 0:
		return ""
	case c.Fare != nil:
		return fmt.Sprintf("%2d %s%s", c.Day, kMiles(c.Fare.Miles), tierMarks[c.Tier])
	case c.Searched:
		return fmt.Sprintf("%2d --", c.Day)
	default:
		return fmt.Sprintf("%2d", c.Day)
	}
}

func printCalendar(w io.Writer, cal calendar.Calendar) {
	fmt.Fprintf(w, "%s → %s  |  %s\n", cal.Origin, cal.Destination, cabinLabel(cal.Cabin))
	for _, m := range cal.Months {
		fmt.Fprintf(w, "\n%s\n", m.Title())
		tw := newTable(w)
		row(tw, "Mo", "Tu", "We", "Th", "Fr", "Sa", "Su")
		for _, week := range m.Weeks {
			cells := make([]string, 0, len(week))
			for _, c := range week {
				cells = append(cells, calendarCell(c))
			}
			row(tw, cells...)
		}
		tw.Flush()
	}
	fmt.Fprintln(w, "\n+ cheap  ~ moderate  ! expensive  -- no availability")
	fmt.Fprintf(w, "%d of %d days available", cal.Available(), cal.Searched)
	if best, ok := cal.Best(); ok {
		fmt.Fprintf(w, "  |  best: %s miles on %s (%s)", model.FormatMiles(best.Miles), best.Date, best.Program)
	}
	fmt.Fprintln(w)
}

// printMultiCity ranks origins by their cheapest fare.
func printMultiCity(w io.Writer, origins []string, byOrigin map[string][]model.SearchResult, cabin model.Cabin, destination, dateRange string) {
	type best struct {
		origin string
		date   string
		flight model.Flight
		fare   model.FlightFare
		found  bool
	}
	var rows []best
	for _, o := range origins {
		b := best{origin: o}
		for _, r := range byOrigin[o] {
			for _, f := range r.Flights {
				fare, ok := f.BestFare(cabin)
				if ok && (!b.found || fare.Miles < b.fare.Miles) {
					b = best{origin: o, date: r.Date, flight: f, fare: fare, found: true}
				}
			}
		}
		rows = append(rows, b)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].found != rows[j].found {
			return rows[i].found
		}
		return rows[i].fare.Miles < rows[j].fare.Miles
	})

	fmt.Fprintf(w, "Best deals to %s  |  %s  |  %s\n", destination, dateRange, cabinLabel(cabin))
	tw := newTable(w)
	row(tw, "ORIGIN", "DATE", "FLIGHT", "MILES", "TAXES", "CABIN", "PROGRAM")
	for _, b := range rows {
		if !b.found {
			row(tw, b.origin, noValue, noValue, noValue, noValue, noValue, noValue)
			continue
		}
		row(tw, b.origin, b.date, b.flight.FlightNo, miles(b.fare.Miles), "$"+b.fare.Cash.StringFixed(2), b.fare.Cabin.Display(), string(b.fare.Program))
	}
	tw.Flush()
}

func printConnections(w io.Writer, itineraries []model.ConnectionItinerary, limit int) {
	if len(itineraries) == 0 {
		fmt.Fprintln(w, "No connections found.")
		return
	}
	if limit > 0 && len(itineraries) > limit {
		itineraries = itineraries[:limit]
	}
	tw := newTable(w)
	row(tw, "ROUTE", "FLIGHTS", "DEPARTS", "ARRIVES", "LAYOVER", "TOTAL", "MILES", "TAXES")
	for _, it := range itineraries {
		row(tw,
			it.Origin()+" → "+it.Via()+" → "+it.Destination(),
			it.FirstSegment.FlightNo+" + "+it.SecondSegment.FlightNo,
			it.Departure().Format("01-02 15:04"),
			it.Arrival().Format("01-02 15:04"),
			connection.FormatDuration(it.LayoverMinutes),
			connection.FormatDuration(it.TotalDurationMinutes),
			miles(it.TotalMiles),
			"$"+it.TotalCash.StringFixed(2),
		)
	}
	tw.Flush()
}

func printRecommendations(w io.Writer, recs []recommend.Recommendation, limit int) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No redemptions found.")
		return
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	tw := newTable(w)
	row(tw, "#", "ROUTE", "DATE", "FLIGHT", "CABIN", "PROGRAM", "MILES", "TAXES", "DISTANCE", "SCORE")
	for i, r := range recs {
		row(tw,
			strconv.Itoa(i+1),
			r.Origin+" → "+r.Destination,
			r.Date,
			r.Flight.FlightNo,
			r.Fare.Cabin.Display(),
			string(r.Fare.Program),
			miles(r.Fare.Miles),
			"$"+r.Fare.Cash.StringFixed(2),
			model.FormatMiles(r.DistanceMiles),
			strconv.FormatFloat(r.Score, 'f', 3, 64),
		)
	}
	tw.Flush()
}

func printTrend(w io.Writer, rows []history.TrendRow, stats history.RouteStats, origin, destination string, cabin model.Cabin) {
	fmt.Fprintf(w, "Price History: %s → %s  |  %s\n", origin, destination, cabinLabel(cabin))
	if len(rows) == 0 {
		fmt.Fprintln(w, "No history data found. Run `wombat search` first to build history.")
		return
	}
	tw := newTable(w)
	row(tw, "FLIGHT DATE", "CABIN", "PROGRAM", "BEST MILES", "AVG TAXES", "SAMPLES", "LAST SEEN")
	for _, r := range rows {
		row(tw, r.FlightDate, r.Cabin.Display(), string(r.Program), miles(r.MinMiles),
			fmt.Sprintf("$%.0f", r.AvgTaxes), strconv.Itoa(r.SampleCount), r.LastSeen.Format(time.DateTime))
	}
	tw.Flush()
	if stats.TotalRecords > 0 && stats.FirstSeen != nil {
		fmt.Fprintf(w, "%d total records  |  all-time low: %s miles  |  tracking since %s\n",
			stats.TotalRecords, model.FormatMiles(stats.MinMiles), stats.FirstSeen.Format(time.DateTime))
	}
}

func printStats(w io.Writer, stats history.RouteStats, origin, destination string, cabin model.Cabin) {
	fmt.Fprintf(w, "Price History Stats: %s → %s  |  %s\n", origin, destination, cabinLabel(cabin))
	if stats.TotalRecords == 0 {
		fmt.Fprintln(w, "No history data found. Run `wombat search` first.")
		return
	}
	seen := func(t *time.Time) string {
		if t == nil {
			return noValue
		}
		return t.Format(time.DateTime)
	}
	tw := newTable(w)
	row(tw, "Total records", strconv.Itoa(stats.TotalRecords))
	row(tw, "Unique flight dates", strconv.Itoa(stats.UniqueFlightDates))
	row(tw, "Min miles seen", miles(stats.MinMiles))
	row(tw, "Max miles seen", miles(stats.MaxMiles))
	row(tw, "Avg miles", miles(stats.AvgMiles))
	row(tw, "First recorded", seen(stats.FirstSeen))
	row(tw, "Last recorded", seen(stats.LastSeen))
	tw.Flush()
}

func printAlerts(w io.Writer, list []model.Alert) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No alerts configured. Use `wombat alert add` to create one.")
		return
	}
	tw := newTable(w)
	row(tw, "ID", "ROUTE", "CABIN", "PROGRAM", "MAX MILES", "NOTIFY", "STATUS")
	for _, a := range list {
		status := "active"
		if !a.Enabled {
			status = "disabled"
		}
		cabin := "any"
		if a.Cabin != "" {
			cabin = a.Cabin.Display()
		}
		maxMiles := "any"
		if a.MaxMiles > 0 {
			maxMiles = model.FormatMiles(a.MaxMiles)
		}
		row(tw, strconv.FormatInt(a.ID, 10), a.Route(), cabin, string(a.Program), maxMiles, a.NotificationSummary(), status)
	}
	tw.Flush()
}

func printFirings(w io.Writer, firings []model.AlertFiring) {
	if len(firings) == 0 {
		fmt.Fprintln(w, "No alert history yet.")
		return
	}
	tw := newTable(w)
	row(tw, "ALERT", "ROUTE", "FLIGHT DATE", "FLIGHT", "CABIN", "PROGRAM", "MILES", "TAXES", "NEW LOW", "FIRED AT")
	for _, f := range firings {
		newLow := noValue
		if f.IsNewLow {
			newLow = "yes"
		}
		row(tw, strconv.FormatInt(f.AlertID, 10), firstOr(f.Route, noValue), firstOr(f.FlightDate, noValue), firstOr(f.FlightNo, noValue),
			f.Cabin.Display(), string(f.Program), miles(f.Miles), "$"+f.Taxes.StringFixed(0), newLow, f.FiredAt.Local().Format("01-02 15:04"))
	}
	tw.Flush()
}

func printEmailConfigs(w io.Writer, list []model.EmailConfig) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No email configs. Use `wombat email add` to create one.")
		return
	}
	tw := newTable(w)
	row(tw, "NAME", "SMTP", "USER", "FROM", "TLS")
	for _, c := range list {
		c = c.Redacted()
		row(tw, c.Name, fmt.Sprintf("%s:%d", c.SMTPHost, c.SMTPPort), firstOr(c.SMTPUser, noValue), c.FromAddr, strconv.FormatBool(c.UseTLS))
	}
	tw.Flush()
}

func printTriggered(w io.Writer, t model.TriggeredAlert) {
	badge := ""
	if t.IsNewLow {
		badge = "  NEW LOW"
	}
	fmt.Fprintf(w, "  Alert #%d: %s %s %s %s miles + $%s%s\n",
		t.Alert.ID, t.FlightDate, t.Cabin.Display(), t.Program, model.FormatMiles(t.Miles), t.Taxes.StringFixed(0), badge)
}
