package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"wombat/internal/model"
	"wombat/internal/monitor"
	"wombat/internal/server"
)

func (a *App) cmdCache(ctx context.Context, e env, args []string) error {
	if len(args) == 0 {
		return newExitError(ExitInvalidUsage, "usage: wombat cache clear [--expired] | info")
	}
	switch args[0] {
	case "clear":
		fs := a.flagSet("cache clear")
		expired := fs.Bool("expired", false, "Clear only expired entries")
		if err := parseFlags(fs, args[1:]); err != nil {
			return err
		}
		svc, err := a.open(ctx, e)
		if err != nil {
			return err
		}
		defer svc.Close()

		if *expired {
			n, err := svc.Cache.ClearExpired(ctx)
			if err != nil {
				return wrapExitError(ExitGenericFailure, err)
			}
			fmt.Fprintf(a.Stdout, "Cleared %d expired cache entries.\n", n)
			return nil
		}
		n, err := svc.Cache.ClearAll(ctx)
		if err != nil {
			return wrapExitError(ExitGenericFailure, err)
		}
		fmt.Fprintf(a.Stdout, "Cache cleared (%d entries).\n", n)
		return nil
	case "info":
		svc, err := a.open(ctx, e)
		if err != nil {
			return err
		}
		defer svc.Close()

		info, err := svc.Cache.Info(ctx)
		if err != nil {
			return wrapExitError(ExitGenericFailure, err)
		}
		if e.JSON {
			return writeJSON(a.Stdout, info)
		}
		tw := newTable(a.Stdout)
		row(tw, "Backend", info.Backend)
		row(tw, "Entries", fmt.Sprint(info.Entries))
		row(tw, "Expired", fmt.Sprint(info.Expired))
		row(tw, "TTL", e.cfg.Cache.TTL.String())
		tw.Flush()
		return nil
	default:
		return newExitError(ExitInvalidUsage, "unknown cache command %q", args[0])
	}
}

func (a *App) monitorOptions(e env, dryRun bool, program string, days int, dedupHours float64) (monitor.Options, error) {
	switch model.Program(program) {
	case model.ProgramAll, model.ProgramAlaska, model.ProgramAeroplan:
	default:
		return monitor.Options{}, newExitError(ExitInvalidUsage, "unknown program %q: choose alaska, aeroplan or all", program)
	}
	if days < 1 {
		return monitor.Options{}, newExitError(ExitInvalidUsage, "--days must be at least 1")
	}
	if dedupHours < 0 {
		return monitor.Options{}, newExitError(ExitInvalidUsage, "--dedup-hours must not be negative")
	}
	return monitor.Options{
		DryRun:      dryRun,
		Program:     program,
		Days:        days,
		Concurrency: e.cfg.Search.MonitorConcurrency,
		DedupWindow: time.Duration(dedupHours * float64(time.Hour)),
	}, nil
}

func (a *App) cmdMonitor(ctx context.Context, e env, args []string) error {
	fs := a.flagSet("monitor")
	dryRun := fs.Bool("dry-run", false, "Check alerts but do not send notifications")
	program := fs.StringP("program", "p", string(model.ProgramAll), "Limit to program: alaska, aeroplan, all")
	days := fs.IntP("days", "d", e.cfg.Server.MonitorDays, "Search N days ahead for each alert route")
	dedupHours := fs.Float64("dedup-hours", e.cfg.Alerts.DedupWindow.Hours(), "Suppress re-firing within N hours")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	opts, err := a.monitorOptions(e, *dryRun, *program, *days, *dedupHours)
	if err != nil {
		return err
	}

	svc, err := a.open(ctx, e)
	if err != nil {
		return err
	}
	defer svc.Close()

	report, err := svc.Monitor.RunOnce(ctx, opts)
	if err != nil {
		return wrapExitError(ExitGenericFailure, err)
	}
	if e.JSON {
		if err := writeJSON(a.Stdout, report); err != nil {
			return wrapExitError(ExitGenericFailure, err)
		}
	} else {
		printReport(a, report, opts.DryRun)
	}

	if report.Routes > 0 && report.Failures == report.Routes {
		return newExitError(ExitProviderFailure, "every alert route failed")
	}
	return notifyOutcome(report, opts.DryRun)
}

func printReport(a *App, report monitor.Report, dryRun bool) {
	if report.Alerts == 0 {
		fmt.Fprintln(a.Stdout, "No active alerts. Use `wombat alert add` to create one.")
		return
	}
	mode := ""
	if dryRun {
		mode = " [DRY RUN]"
	}
	fmt.Fprintf(a.Stdout, "Ran %d alert(s) over %d route(s)%s\n", report.Alerts, report.Routes, mode)
	for _, f := range report.Firings {
		printTriggered(a.Stdout, f.Alert)
		switch {
		case dryRun:
			fmt.Fprintln(a.Stdout, "    (dry run, notification skipped)")
		case !f.Delivered:
			fmt.Fprintln(a.Stdout, "    notification failed")
		}
	}
	if len(report.Firings) == 0 {
		fmt.Fprintln(a.Stdout, "No alerts triggered.")
		return
	}
	fmt.Fprintf(a.Stdout, "%d alert(s) triggered, %d notification(s) sent.\n", len(report.Firings), report.Sent)
}

// notifyOutcome fails when alerts with channels fired and none of them were delivered.
func notifyOutcome(report monitor.Report, dryRun bool) error {
	if dryRun {
		return nil
	}
	attempted := 0
	for _, f := range report.Firings {
		a := f.Alert.Alert
		if len(a.Webhooks) == 0 && len(a.EmailTo) == 0 {
			continue
		}
		attempted++
		if f.Delivered {
			return nil
		}
	}
	if attempted == 0 {
		return nil
	}
	return wrapNotifyError(errors.New("every alert notification failed"))
}

func (a *App) cmdServe(ctx context.Context, e env, args []string) error {
	fs := a.flagSet("serve")
	listen := fs.String("listen", e.cfg.Server.Listen, "HTTP listen address")
	interval := fs.Duration("interval", e.cfg.Server.MonitorInterval, "Alert monitor interval")
	noMonitor := fs.Bool("no-monitor", false, "Serve the API without running alerts")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if !*noMonitor && *interval <= 0 {
		return newExitError(ExitInvalidUsage, "--interval must be positive")
	}
	opts, err := a.monitorOptions(e, false, string(model.ProgramAll), e.cfg.Server.MonitorDays, e.cfg.Alerts.DedupWindow.Hours())
	if err != nil {
		return err
	}

	svc, err := a.open(ctx, e)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := server.New(e.logger, server.Deps{
		Searchers: func(program string) (server.Searcher, error) {
			s, err := svc.Searchers(program, true)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		History:      svc.History,
		Alerts:       svc.Alerts,
		Feed:         svc.Feed,
		Concurrency:  e.cfg.Search.Concurrency,
		LookbackDays: e.cfg.History.LookbackDays,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx, *listen)
	})
	if !*noMonitor {
		g.Go(func() error {
			return svc.Monitor.Run(gctx, *interval, opts)
		})
	}
	if err := g.Wait(); err != nil {
		return wrapExitError(ExitGenericFailure, err)
	}
	return nil
}
