package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"wombat/internal/config"
	"wombat/internal/logging"
)

var errHelp = errors.New("help requested")

type App struct {
	Version string
	Stdout  io.Writer
	Stderr  io.Writer
	Open    Opener

	now func() time.Time
}

type globalFlags struct {
	ConfigFile string
	Verbose    bool
	JSON       bool
	Version    bool
}

// env is what every command receives after the global flags and config are resolved.
type env struct {
	globalFlags
	cfg    config.Config
	logger *slog.Logger
}

func NewApp(version string) *App {
	return &App{
		Version: version,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Open:    OpenServices,
		now:     time.Now,
	}
}

func (a *App) Run(ctx context.Context, args []string) error {
	err := a.run(ctx, args)
	if errors.Is(err, errHelp) {
		return nil
	}
	return err
}

func (a *App) run(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("wombat", pflag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	fs.SetInterspersed(false)
	fs.Usage = func() {}

	var g globalFlags
	fs.StringVar(&g.ConfigFile, "config", "", "Path to a config file")
	fs.BoolVarP(&g.Verbose, "verbose", "v", false, "Debug logging")
	fs.BoolVar(&g.JSON, "json", false, "Print JSON instead of tables")
	fs.BoolVar(&g.Version, "version", false, "Print the version")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return a.help()
		}
		return usageError(err)
	}
	if g.Version {
		fmt.Fprintln(a.Stdout, a.Version)
		return nil
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return a.help()
	}
	cmd, argv := rest[0], rest[1:]

	switch cmd {
	case "help":
		return a.help()
	case "version":
		fmt.Fprintln(a.Stdout, a.Version)
		return nil
	}

	e, err := a.loadEnv(fs, g)
	if err != nil {
		return err
	}

	switch cmd {
	case "search":
		return a.cmdSearch(ctx, e, argv)
	case "calendar", "calendar-view":
		return a.cmdCalendar(ctx, e, argv)
	case "multi-city":
		return a.cmdMultiCity(ctx, e, argv)
	case "connect":
		return a.cmdConnect(ctx, e, argv)
	case "recommend":
		return a.cmdRecommend(ctx, e, argv)
	case "history":
		return a.cmdHistory(ctx, e, argv)
	case "alert":
		return a.cmdAlert(ctx, e, argv)
	case "email":
		return a.cmdEmail(ctx, e, argv)
	case "cache":
		return a.cmdCache(ctx, e, argv)
	case "monitor":
		return a.cmdMonitor(ctx, e, argv)
	case "serve":
		return a.cmdServe(ctx, e, argv)
	default:
		return newExitError(ExitInvalidUsage, "unknown command %q\n\n%s", cmd, usageText())
	}
}

// loadEnv reads config through viper with the global flags bound on top.
func (a *App) loadEnv(fs *pflag.FlagSet, g globalFlags) (env, error) {
	v := config.New()
	if err := v.BindPFlag("config", fs.Lookup("config")); err != nil {
		return env{}, wrapExitError(ExitGenericFailure, err)
	}
	if g.Verbose {
		v.Set("log.level", "debug")
	}
	cfg, err := config.Load(v)
	if err != nil {
		return env{}, wrapExitError(ExitGenericFailure, err)
	}
	logger, err := logging.NewWithWriter(cfg.Log, a.Stderr)
	if err != nil {
		return env{}, usageError(err)
	}
	return env{globalFlags: g, cfg: cfg, logger: logger}, nil
}

func (a *App) open(ctx context.Context, e env) (*Services, error) {
	svc, err := a.Open(ctx, e.cfg, e.logger)
	if err != nil {
		return nil, wrapExitError(ExitGenericFailure, err)
	}
	return svc, nil
}

func (a *App) flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	return fs
}

func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return errHelp
		}
		return usageError(err)
	}
	return nil
}

func (a *App) help() error {
	fmt.Fprint(a.Stdout, usageText())
	return nil
}

func usageText() string {
	return `wombat - Search Alaska and Aeroplan award availability, track prices and run alerts

USAGE:
  wombat [global flags] <command> [args]

COMMANDS:
  search ORIGIN DEST [DATE]           Search award availability
  calendar ORIGIN DEST [YYYY-MM]      Monthly grid of the cheapest miles per day
  multi-city O1,O2,... DEST DATE      Compare several origins to one destination
  connect ORIGIN VIA DEST DATE        Build two-flight connections through VIA
  recommend ORIGIN [DEST...]          Rank redemptions by value
  history show|stats|clear            Price history
  alert add|list|remove|enable|disable|history|test|watch
                                      Award alerts
  email add|list|remove               Named SMTP configurations for alerts
  cache clear|info                    Search cache
  monitor                             Check every active alert once
  serve                               Run the HTTP API and the alert monitor

GLOBAL FLAGS:
  --config PATH   Config file (default: ./config.yaml or ~/.wombat-miles/config.yaml)
  -v, --verbose   Debug logging
  --json          JSON output
  --version       Print the version

EXAMPLES:
  wombat search SFO NRT 2025-06-01 --class business
  wombat search SFO YYZ --start 2025-06-01 --end 2025-06-30 --summary
  wombat calendar SFO NRT 2025-06 --program aeroplan --months 2
  wombat alert add SFO NRT --class business --max-miles 70000 --webhook https://discord.com/api/webhooks/...
  wombat monitor --dry-run
`
}
