package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"wombat/internal/calendar"
	"wombat/internal/connection"
	"wombat/internal/export"
	"wombat/internal/model"
	"wombat/internal/recommend"
	"wombat/internal/search"
)

// searchFlags are shared by every command that hits the award programs.
type searchFlags struct {
	class   string
	program string
	stops   int
	noCache bool
}

func (f *searchFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.class, "class", "c", "", "Cabin: economy, business, first")
	fs.StringVarP(&f.program, "program", "p", string(model.ProgramAll), "Program: alaska, aeroplan, all")
	fs.IntVar(&f.stops, "stops", 0, "Max stops (0 = direct only)")
	fs.BoolVar(&f.noCache, "no-cache", false, "Skip the search cache")
}

// query validates the flags and builds a search query. An unset --stops falls back to config.
func (f *searchFlags) query(fs *pflag.FlagSet, e env, origin, destination string) (search.Query, error) {
	cabin, err := model.ParseCabin(f.class)
	if err != nil {
		return search.Query{}, usageError(err)
	}
	maxStops := f.stops
	if !fs.Changed("stops") {
		maxStops = e.cfg.Search.MaxStops
	}
	if maxStops < 0 {
		return search.Query{}, newExitError(ExitInvalidUsage, "--stops must not be negative")
	}
	return search.Query{
		Origin:      strings.ToUpper(origin),
		Destination: strings.ToUpper(destination),
		Cabin:       cabin,
		MaxStops:    maxStops,
	}, nil
}

func (f *searchFlags) searcher(svc *Services) (Searcher, error) {
	s, err := svc.Searchers(f.program, !f.noCache)
	if err != nil {
		return nil, wrapProviderError(err)
	}
	return s, nil
}

func parseDateArg(s string) (time.Time, error) {
	t, err := search.ParseDate(s)
	if err != nil {
		return time.Time{}, usageError(err)
	}
	return t, nil
}

// allFailed reports whether every search errored without returning a flight.
func allFailed(results []model.SearchResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if len(r.Flights) > 0 || len(r.Errors) == 0 {
			return false
		}
	}
	return true
}

func providerFailure(results []model.SearchResult) error {
	return newExitError(ExitProviderFailure, "every search failed: %s", results[0].Errors[0])
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return wrapExitError(ExitGenericFailure, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return wrapExitError(ExitGenericFailure, err)
	}
	return wrapExitError(ExitGenericFailure, f.Close())
}

func (a *App) cmdSearch(ctx context.Context, e env, args []string) error {
	fs := a.flagSet("search")
	var sf searchFlags
	sf.register(fs)
	days := fs.IntP("days", "d", 1, "Search N days starting from DATE")
	start := fs.String("start", "", "Range start YYYY-MM-DD")
	end := fs.String("end", "", "Range end YYYY-MM-DD")
	output := fs.StringP("output", "o", "", "Write results to a file (.csv or JSON)")
	summary := fs.BoolP("summary", "s", false, "Show a summary table for date ranges")
	noHistory := fs.Bool("no-history", false, "Do not record prices to history")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return newExitError(ExitInvalidUsage, "usage: wombat search ORIGIN DEST [DATE]")
	}
	q, err := sf.query(fs, e, fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}

	var dates []string
	switch {
	case *start != "" && *end != "":
		from, err := parseDateArg(*start)
		if err != nil {
			return err
		}
		to, err := parseDateArg(*end)
		if err != nil {
			return err
		}
		if to.Before(from) {
			return newExitError(ExitInvalidUsage, "--end must not be before --start")
		}
		dates = search.DateRange(from, to)
	case fs.NArg() >= 3:
		from, err := parseDateArg(fs.Arg(2))
		if err != nil {
			return err
		}
		if *days < 1 {
			return newExitError(ExitInvalidUsage, "--days must be at least 1")
		}
		dates = search.DaysFrom(from, *days)
	default:
		return newExitError(ExitInvalidUsage, "no date specified: use wombat search %s %s 2025-06-01", q.Origin, q.Destination)
	}

	svc, err := a.open(ctx, e)
	if err != nil {
		return err
	}
	defer svc.Close()
	searcher, err := sf.searcher(svc)
	if err != nil {
		return err
	}

	e.logger.Info("Search: searching", "route", q.Origin+"-"+q.Destination, "dates", len(dates), "program", sf.program)
	results := searcher.SearchDates(ctx, q, dates, e.cfg.Search.Concurrency)

	if *output != "" {
		err := writeFile(*output, func(f *os.File) error {
			if strings.HasSuffix(strings.ToLower(*output), ".csv") {
				return export.WriteCSV(f, results, q.Cabin)
			}
			return export.WriteJSON(f, results, q.Cabin)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Stdout, "Results saved to %s\n", *output)
	}

	if !*noHistory && e.cfg.History.Enabled {
		// New lows compare against what was recorded before this run.
		lows, err := svc.History.DetectNewLows(ctx, results, q.Cabin, e.cfg.History.LookbackDays)
		if err != nil {
			e.logger.Warn("Search: new low detection failed", "error", err)
		}
		if n, err := svc.History.RecordResults(ctx, results, q.Cabin); err != nil {
			e.logger.Warn("Search: price history recording failed", "error", err)
		} else {
			e.logger.Debug("Search: recorded price snapshots", "count", n)
		}
		if !e.JSON {
			printNewLows(a.Stdout, lows)
		}
	}

	if *output == "" {
		if e.JSON {
			records := make([]export.ResultRecord, 0, len(results))
			for _, r := range results {
				records = append(records, export.Result(r, q.Cabin))
			}
			if err := writeJSON(a.Stdout, records); err != nil {
				return wrapExitError(ExitGenericFailure, err)
			}
		} else {
			if len(results) > 1 && *summary {
				printSummary(a.Stdout, results, q.Cabin)
			}
			for _, r := range results {
				printResult(a.Stdout, r, q.Cabin)
			}
		}
	}

	if allFailed(results) {
		return providerFailure(results)
	}
	return nil
}

func (a *App) cmdCalendar(ctx context.Context, e env, args []string) error {
	fs := a.flagSet("calendar")
	var sf searchFlags
	sf.register(fs)
	months := fs.IntP("months", "m", 1, "Number of months to show")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return newExitError(ExitInvalidUsage, "usage: wombat calendar ORIGIN DEST [YYYY-MM]")
	}
	if *months < 1 {
		return newExitError(ExitInvalidUsage, "--months must be at least 1")
	}
	q, err := sf.query(fs, e, fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}

	now := a.now().UTC()
	first := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	if fs.NArg() >= 3 {
		first, err = time.Parse("2006-01", fs.Arg(2))
		if err != nil {
			return newExitError(ExitInvalidUsage, "invalid month %q: use YYYY-MM (e.g. 2025-06)", fs.Arg(2))
		}
	}
	dates := calendar.MonthDates(first, *months)

	svc, err := a.open(ctx, e)
	if err != nil {
		return err
	}
	defer svc.Close()
	searcher, err := sf.searcher(svc)
	if err != nil {
		return err
	}

	if !e.JSON {
		fmt.Fprintf(a.Stdout, "Scanning %d days for %s → %s...\n", len(dates), q.Origin, q.Destination)
	}
	results := searcher.SearchDates(ctx, q, dates, e.cfg.Search.Concurrency)
	cal, err := calendar.Build(q.Origin, q.Destination, results, q.Cabin)
	if err != nil {
		return wrapExitError(ExitGenericFailure, err)
	}
	if e.JSON {
		return writeJSON(a.Stdout, cal)
	}
	printCalendar(a.Stdout, cal)
	if allFailed(results) {
		return providerFailure(results)
	}
	return nil
}

func (a *App) cmdMultiCity(ctx context.Context, e env, args []string) error {
	fs := a.flagSet("multi-city")
	var sf searchFlags
	sf.register(fs)
	days := fs.IntP("days", "d", 1, "Search N days starting from DATE")
	output := fs.StringP("output", "o", "", "Write results to a JSON file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 3 {
		return newExitError(ExitInvalidUsage, "usage: wombat multi-city O1,O2,... DEST DATE")
	}
	var origins []string
	for _, o := range strings.Split(fs.Arg(0), ",") {
		if o = strings.ToUpper(strings.TrimSpace(o)); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return newExitError(ExitInvalidUsage, "no valid origins: use comma-separated codes like SFO,LAX,SEA")
	}
	if len(origins) == 1 {
		e.logger.Warn("MultiCity: only one origin given, wombat search is simpler")
	}
	from, err := parseDateArg(fs.Arg(2))
	if err != nil {
		return err
	}
	if *days < 1 {
		return newExitError(ExitInvalidUsage, "--days must be at least 1")
	}
	dates := search.DaysFrom(from, *days)
	q, err := sf.query(fs, e, origins[0], fs.Arg(1))
	if err != nil {
		return err
	}

	svc, err := a.open(ctx, e)
	if err != nil {
		return err
	}
	defer svc.Close()
	searcher, err := sf.searcher(svc)
	if err != nil {
		return err
	}

	byOrigin := make(map[string][]model.SearchResult, len(origins))
	var all []model.SearchResult
	for _, o := range origins {
		q.Origin = o
		e.logger.Info("MultiCity: searching", "route", o+"-"+q.Destination, "dates", len(dates))
		results := searcher.SearchDates(ctx, q, dates, e.cfg.Search.Concurrency)
		byOrigin[o] = results
		all = append(all, results...)
	}

	switch {
	case *output != "":
		err := writeFile(*output, func(f *os.File) error {
			return export.WriteMultiCityJSON(f, byOrigin, q.Cabin)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Stdout, "Results saved to %s\n", *output)
	case e.JSON:
		if err := export.WriteMultiCityJSON(a.Stdout, byOrigin, q.Cabin); err != nil {
			return wrapExitError(ExitGenericFailure, err)
		}
	default:
		dateRange := dates[0]
		if len(dates) > 1 {
			dateRange += " to " + dates[len(dates)-1]
		}
		printMultiCity(a.Stdout, origins, byOrigin, q.Cabin, q.Destination, dateRange)
	}

	if allFailed(all) {
		return providerFailure(all)
	}
	return nil
}

func (a *App) cmdConnect(ctx context.Context, e env, args []string) error {
	fs := a.flagSet("connect")
	var sf searchFlags
	sf.register(fs)
	minLayover := fs.Duration("min-layover", connection.DefaultMinLayover, "Shortest acceptable layover")
	maxLayover := fs.Duration("max-layover", connection.DefaultMaxLayover, "Longest acceptable layover")
	limit := fs.IntP("limit", "n", 10, "Max itineraries to show")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 4 {
		return newExitError(ExitInvalidUsage, "usage: wombat connect ORIGIN VIA DEST DATE")
	}
	if *minLayover < 0 || *maxLayover < *minLayover {
		return newExitError(ExitInvalidUsage, "layover bounds must satisfy 0 <= --min-layover <= --max-layover")
	}
	day, err := parseDateArg(fs.Arg(3))
	if err != nil {
		return err
	}
	firstQ, err := sf.query(fs, e, fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}
	secondQ := firstQ
	secondQ.Origin, secondQ.Destination = firstQ.Destination, strings.ToUpper(fs.Arg(2))
	// Only the cheapest fare per leg matters, so legs are searched across every cabin.
	firstQ.Cabin, secondQ.Cabin = "", ""
	cabin, _ := model.ParseCabin(sf.class)

	svc, err := a.open(ctx, e)
	if err != nil {
		return err
	}
	defer svc.Close()
	searcher, err := sf.searcher(svc)
	if err != nil {
		return err
	}

	first := searcher.SearchDate(ctx, firstQ, day.Format(time.DateOnly))
	// Overnight connections leave on the following day.
	seconds := searcher.SearchDates(ctx, secondQ, search.DaysFrom(day, 2), e.cfg.Search.Concurrency)
	var secondFlights []model.Flight
	for _, r := range seconds {
		secondFlights = append(secondFlights, r.Flights...)
	}

	itineraries := connection.FindConnections(first.Flights, secondFlights, *minLayover, *maxLayover, cabin)
	if e.JSON {
		if itineraries == nil {
			itineraries = []model.ConnectionItinerary{}
		}
		return writeJSON(a.Stdout, itineraries)
	}
	fmt.Fprintf(a.Stdout, "%s → %s → %s  |  %s  |  %s\n", firstQ.Origin, firstQ.Destination, secondQ.Destination, fs.Arg(3), cabinLabel(cabin))
	for _, r := range append([]model.SearchResult{first}, seconds...) {
		for _, msg := range r.Errors {
			fmt.Fprintf(a.Stdout, "! %s→%s %s: %s\n", r.Origin, r.Destination, r.Date, msg)
		}
	}
	printConnections(a.Stdout, itineraries, *limit)

	if allFailed([]model.SearchResult{first}) {
		return providerFailure([]model.SearchResult{first})
	}
	return nil
}

func (a *App) cmdRecommend(ctx context.Context, e env, args []string) error {
	fs := a.flagSet("recommend")
	var sf searchFlags
	sf.register(fs)
	region := fs.StringP("region", "r", "", "Region to draw destinations from: "+strings.Join(recommend.Regions, ", "))
	date := fs.String("date", "", "First date YYYY-MM-DD (default: today)")
	days := fs.IntP("days", "d", 7, "Number of days to search")
	maxMiles := fs.IntP("max-miles", "m", 0, "Only fares at or under this many miles")
	destCount := fs.Int("destinations", 5, "Destinations to search when using --region")
	limit := fs.IntP("limit", "n", 10, "Max recommendations to show")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return newExitError(ExitInvalidUsage, "usage: wombat recommend ORIGIN [DEST...] [--region REGION]")
	}
	if *maxMiles < 0 || *days < 1 {
		return newExitError(ExitInvalidUsage, "--max-miles must not be negative and --days must be at least 1")
	}

	dests := fs.Args()[1:]
	if len(dests) == 0 {
		if *region == "" {
			return newExitError(ExitInvalidUsage, "give destinations or --region (%s)", strings.Join(recommend.Regions, ", "))
		}
		dests = recommend.DestinationsByRegion(*region, *destCount)
	}
	from := a.now().UTC()
	if *date != "" {
		t, err := parseDateArg(*date)
		if err != nil {
			return err
		}
		from = t
	}
	dates := search.DaysFrom(from, *days)

	q, err := sf.query(fs, e, fs.Arg(0), dests[0])
	if err != nil {
		return err
	}
	filter := recommend.RankFilter{Cabin: q.Cabin, MaxMiles: *maxMiles}
	if p := model.Program(strings.ToLower(sf.program)); p != model.ProgramAll {
		filter.Program = p
	}

	svc, err := a.open(ctx, e)
	if err != nil {
		return err
	}
	defer svc.Close()
	searcher, err := sf.searcher(svc)
	if err != nil {
		return err
	}

	var all []model.SearchResult
	for _, d := range dests {
		q.Destination = strings.ToUpper(d)
		e.logger.Info("Recommend: searching", "route", q.Origin+"-"+q.Destination, "dates", len(dates))
		all = append(all, searcher.SearchDates(ctx, q, dates, e.cfg.Search.Concurrency)...)
	}

	recs := recommend.RankRedemptions(recommend.CandidatesFromResults(all), filter)
	if e.JSON {
		if *limit > 0 && len(recs) > *limit {
			recs = recs[:*limit]
		}
		if recs == nil {
			recs = []recommend.Recommendation{}
		}
		return writeJSON(a.Stdout, recs)
	}
	fmt.Fprintf(a.Stdout, "Best redemptions from %s  |  %s to %s  |  %s\n", q.Origin, dates[0], dates[len(dates)-1], cabinLabel(q.Cabin))
	printRecommendations(a.Stdout, recs, *limit)
	if allFailed(all) {
		return providerFailure(all)
	}
	return nil
}
