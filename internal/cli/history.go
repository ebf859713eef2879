package cli

import (
	"context"
	"fmt"
	"strings"

	"wombat/internal/history"
	"wombat/internal/model"
)

func (a *App) cmdHistory(ctx context.Context, e env, args []string) error {
	if len(args) == 0 {
		return newExitError(ExitInvalidUsage, "usage: wombat history show|stats|clear")
	}
	switch args[0] {
	case "show":
		return a.historyShow(ctx, e, args[1:])
	case "stats":
		return a.historyStats(ctx, e, args[1:])
	case "clear":
		return a.historyClear(ctx, e, args[1:])
	default:
		return newExitError(ExitInvalidUsage, "unknown history command %q", args[0])
	}
}

func (a *App) historyShow(ctx context.Context, e env, args []string) error {
	fs := a.flagSet("history show")
	class := fs.StringP("class", "c", "", "Cabin: economy, business, first")
	days := fs.IntP("days", "d", 0, "Look back N days (default from config)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return newExitError(ExitInvalidUsage, "usage: wombat history show ORIGIN DEST")
	}
	cabin, err := model.ParseCabin(*class)
	if err != nil {
		return usageError(err)
	}
	lookback := *days
	if lookback <= 0 {
		lookback = e.cfg.History.LookbackDays
	}
	origin, destination := strings.ToUpper(fs.Arg(0)), strings.ToUpper(fs.Arg(1))

	svc, err := a.open(ctx, e)
	if err != nil {
		return err
	}
	defer svc.Close()

	rows, err := svc.History.PriceTrend(ctx, origin, destination, cabin, lookback)
	if err != nil {
		return wrapExitError(ExitGenericFailure, err)
	}
	stats, err := svc.History.Stats(ctx, origin, destination, cabin)
	if err != nil {
		return wrapExitError(ExitGenericFailure, err)
	}
	if e.JSON {
		if rows == nil {
			rows = []history.TrendRow{}
		}
		return writeJSON(a.Stdout, map[string]any{"trend": rows, "stats": stats})
	}
	printTrend(a.Stdout, rows, stats, origin, destination, cabin)
	return nil
}

func (a *App) historyStats(ctx context.Context, e env, args []string) error {
	fs := a.flagSet("history stats")
	class := fs.StringP("class", "c", "", "Cabin: economy, business, first")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return newExitError(ExitInvalidUsage, "usage: wombat history stats ORIGIN DEST")
	}
	cabin, err := model.ParseCabin(*class)
	if err != nil {
		return usageError(err)
	}
	origin, destination := strings.ToUpper(fs.Arg(0)), strings.ToUpper(fs.Arg(1))

	svc, err := a.open(ctx, e)
	if err != nil {
		return err
	}
	defer svc.Close()

	stats, err := svc.History.Stats(ctx, origin, destination, cabin)
	if err != nil {
		return wrapExitError(ExitGenericFailure, err)
	}
	if e.JSON {
		return writeJSON(a.Stdout, stats)
	}
	printStats(a.Stdout, stats, origin, destination, cabin)
	return nil
}

func (a *App) historyClear(ctx context.Context, e env, args []string) error {
	fs := a.flagSet("history clear")
	yes := fs.BoolP("yes", "y", false, "Confirm clearing all history")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	var origin, destination string
	switch fs.NArg() {
	case 0:
		if !*yes {
			return newExitError(ExitInvalidUsage, "clearing ALL price history requires --yes")
		}
	case 2:
		origin, destination = strings.ToUpper(fs.Arg(0)), strings.ToUpper(fs.Arg(1))
	default:
		return newExitError(ExitInvalidUsage, "usage: wombat history clear [ORIGIN DEST] [--yes]")
	}

	svc, err := a.open(ctx, e)
	if err != nil {
		return err
	}
	defer svc.Close()

	n, err := svc.History.ClearHistory(ctx, origin, destination)
	if err != nil {
		return wrapExitError(ExitGenericFailure, err)
	}
	if origin != "" {
		fmt.Fprintf(a.Stdout, "Cleared %d records for %s→%s.\n", n, origin, destination)
	} else {
		fmt.Fprintf(a.Stdout, "Cleared %d total price history records.\n", n)
	}
	return nil
}
