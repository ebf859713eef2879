package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"wombat/internal/alerts"
	"wombat/internal/database"
	"wombat/internal/feed"
	"wombat/internal/model"
)

func (a *App) cmdAlert(ctx context.Context, e env, args []string) error {
	if len(args) == 0 {
		return newExitError(ExitInvalidUsage, "usage: wombat alert add|list|remove|enable|disable|history|test|watch")
	}
	switch args[0] {
	case "add":
		return a.alertAdd(ctx, e, args[1:])
	case "list":
		return a.alertList(ctx, e, args[1:])
	case "remove":
		return a.alertRemove(ctx, e, args[1:])
	case "enable":
		return a.alertSetEnabled(ctx, e, args[1:], true)
	case "disable":
		return a.alertSetEnabled(ctx, e, args[1:], false)
	case "history":
		return a.alertHistory(ctx, e, args[1:])
	case "test":
		return a.alertTest(ctx, e, args[1:])
	case "watch":
		return a.alertWatch(ctx, e, args[1:])
	default:
		return newExitError(ExitInvalidUsage, "unknown alert command %q", args[0])
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, newExitError(ExitInvalidUsage, "invalid alert id %q", s)
	}
	return id, nil
}

func (a *App) alertAdd(ctx context.Context, e env, args []string) error {
	fs := a.flagSet("alert add")
	class := fs.StringP("class", "c", "", "Cabin: economy, business, first")
	program := fs.StringP("program", "p", string(model.ProgramAll), "Program: alaska, aeroplan, all")
	maxMiles := fs.IntP("max-miles", "m", 0, "Trigger only at or under this many miles")
	webhooks := fs.StringArrayP("webhook", "w", nil, "Notification target: https://, amqp://, nats:// or telegram:<chat_id> (repeatable)")
	emailTo := fs.StringSlice("email", nil, "Email recipients (comma separated or repeatable)")
	emailConfig := fs.String("email-config", "", "Named SMTP config for --email")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return newExitError(ExitInvalidUsage, "usage: wombat alert add ORIGIN DEST")
	}
	cabin, err := model.ParseCabin(*class)
	if err != nil {
		return usageError(err)
	}
	if len(*emailTo) > 0 && *emailConfig == "" {
		return newExitError(ExitInvalidUsage, "--email needs --email-config")
	}

	alert := model.Alert{
		Origin:      fs.Arg(0),
		Destination: fs.Arg(1),
		Cabin:       cabin,
		Program:     model.Program(strings.ToLower(*program)),
		MaxMiles:    *maxMiles,
		Webhooks:    *webhooks,
		EmailTo:     *emailTo,
		EmailConfig: *emailConfig,
	}

	svc, err := a.open(ctx, e)
	if err != nil {
		return err
	}
	defer svc.Close()

	id, err := svc.Alerts.AddAlert(ctx, alert)
	if err != nil {
		if errors.Is(err, alerts.ErrInvalidAlert) {
			return usageError(err)
		}
		return wrapExitError(ExitGenericFailure, err)
	}
	alert.ID = id
	alert.Origin, alert.Destination = strings.ToUpper(alert.Origin), strings.ToUpper(alert.Destination)
	if alert.Program == "" {
		alert.Program = model.ProgramAll
	}
	if e.JSON {
		return writeJSON(a.Stdout, map[string]any{"id": id})
	}
	fmt.Fprintf(a.Stdout, "Alert #%d created: %s | notify: %s\n", id, alert.Description(), alert.NotificationSummary())
	return nil
}

func (a *App) alertList(ctx context.Context, e env, args []string) error {
	fs := a.flagSet("alert list")
	all := fs.BoolP("all", "a", false, "Include disabled alerts")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	svc, err := a.open(ctx, e)
	if err != nil {
		return err
	}
	defer svc.Close()

	list, err := svc.Alerts.ListAlerts(ctx, *all)
	if err != nil {
		return wrapExitError(ExitGenericFailure, err)
	}
	if e.JSON {
		if list == nil {
			list = []model.Alert{}
		}
		return writeJSON(a.Stdout, list)
	}
	printAlerts(a.Stdout, list)
	return nil
}

func (a *App) alertRemove(ctx context.Context, e env, args []string) error {
	if len(args) != 1 {
		return newExitError(ExitInvalidUsage, "usage: wombat alert remove ID")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	svc, err := a.open(ctx, e)
	if err != nil {
		return err
	}
	defer svc.Close()

	removed, err := svc.Alerts.RemoveAlert(ctx, id)
	if err != nil {
		return wrapExitError(ExitGenericFailure, err)
	}
	if !removed {
		return newExitError(ExitGenericFailure, "alert #%d not found", id)
	}
	fmt.Fprintf(a.Stdout, "Alert #%d removed.\n", id)
	return nil
}

func (a *App) alertSetEnabled(ctx context.Context, e env, args []string, enabled bool) error {
	verb := "enable"
	if !enabled {
		verb = "disable"
	}
	if len(args) != 1 {
		return newExitError(ExitInvalidUsage, "usage: wombat alert %s ID", verb)
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	svc, err := a.open(ctx, e)
	if err != nil {
		return err
	}
	defer svc.Close()

	found, err := svc.Alerts.SetEnabled(ctx, id, enabled)
	if err != nil {
		return wrapExitError(ExitGenericFailure, err)
	}
	if !found {
		return newExitError(ExitGenericFailure, "alert #%d not found", id)
	}
	fmt.Fprintf(a.Stdout, "Alert #%d %sd.\n", id, verb)
	return nil
}

func (a *App) alertHistory(ctx context.Context, e env, args []string) error {
	fs := a.flagSet("alert history")
	limit := fs.IntP("limit", "n", 20, "Max rows to show")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	var id int64
	if fs.NArg() > 0 {
		var err error
		if id, err = parseID(fs.Arg(0)); err != nil {
			return err
		}
	}
	if *limit <= 0 {
		*limit = alerts.DefaultHistoryLimit
	}

	svc, err := a.open(ctx, e)
	if err != nil {
		return err
	}
	defer svc.Close()

	firings, err := svc.Alerts.History(ctx, id, *limit)
	if err != nil {
		return wrapExitError(ExitGenericFailure, err)
	}
	if e.JSON {
		if firings == nil {
			firings = []model.AlertFiring{}
		}
		return writeJSON(a.Stdout, firings)
	}
	printFirings(a.Stdout, firings)
	return nil
}

// alertTest sends a sample fare to every notification target of an alert.
func (a *App) alertTest(ctx context.Context, e env, args []string) error {
	if len(args) != 1 {
		return newExitError(ExitInvalidUsage, "usage: wombat alert test ID")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	svc, err := a.open(ctx, e)
	if err != nil {
		return err
	}
	defer svc.Close()

	alert, err := svc.Alerts.GetAlert(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return newExitError(ExitInvalidUsage, "alert #%d not found", id)
	}
	if err != nil {
		return wrapExitError(ExitGenericFailure, err)
	}
	if len(alert.Webhooks) == 0 {
		return newExitError(ExitInvalidUsage, "alert #%d has no notification targets", id)
	}

	now := a.now().UTC()
	sample := model.TriggeredAlert{
		Alert:       alert,
		FlightNo:    "TEST 1",
		Origin:      alert.Origin,
		Destination: alert.Destination,
		FlightDate:  now.AddDate(0, 0, 30).Format("2006-01-02"),
		Cabin:       firstCabin(alert.Cabin),
		Program:     model.ProgramAlaska,
		Miles:       max(alert.MaxMiles, 1),
		Taxes:       decimal.NewFromFloat(5.60),
	}

	var firstErr error
	for _, target := range alert.Webhooks {
		sender, err := svc.Notifier.SenderFor(target)
		if err == nil {
			err = sender.Send(ctx, sample)
		}
		if err != nil {
			fmt.Fprintf(a.Stdout, "failed  %s: %v\n", target, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		fmt.Fprintf(a.Stdout, "ok      %s (%s)\n", target, sender.Channel())
	}
	return wrapNotifyError(firstErr)
}

func firstCabin(c model.Cabin) model.Cabin {
	if c == "" {
		return model.CabinEconomy
	}
	return c
}

// alertWatch prints alerts from a running `wombat serve` feed until interrupted.
func (a *App) alertWatch(ctx context.Context, e env, args []string) error {
	fs := a.flagSet("alert watch")
	url := fs.String("url", feedURL(e.cfg.Server.Listen), "Alert feed websocket URL")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	events := make(chan feed.Event)
	errCh := make(chan error, 1)
	go func() {
		errCh <- feed.NewListener(e.logger, *url).Stream(ctx, events)
	}()

	for {
		select {
		case ev := <-events:
			if e.JSON {
				if err := writeJSON(a.Stdout, ev); err != nil {
					return wrapExitError(ExitGenericFailure, err)
				}
				continue
			}
			printTriggered(a.Stdout, ev.Alert)
		case err := <-errCh:
			return wrapExitError(ExitGenericFailure, err)
		}
	}
}

func feedURL(listen string) string {
	host := listen
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "ws://" + host + "/ws/alerts"
}

func (a *App) cmdEmail(ctx context.Context, e env, args []string) error {
	if len(args) == 0 {
		return newExitError(ExitInvalidUsage, "usage: wombat email add|list|remove")
	}
	switch args[0] {
	case "add":
		return a.emailAdd(ctx, e, args[1:])
	case "list":
		return a.emailList(ctx, e, args[1:])
	case "remove":
		return a.emailRemove(ctx, e, args[1:])
	default:
		return newExitError(ExitInvalidUsage, "unknown email command %q", args[0])
	}
}

func (a *App) emailAdd(ctx context.Context, e env, args []string) error {
	fs := a.flagSet("email add")
	var c model.EmailConfig
	fs.StringVar(&c.SMTPHost, "host", "", "SMTP host")
	fs.IntVar(&c.SMTPPort, "port", 587, "SMTP port")
	fs.StringVar(&c.SMTPUser, "user", "", "SMTP user")
	fs.StringVar(&c.SMTPPass, "password", "", "SMTP password")
	fs.StringVar(&c.FromAddr, "from", "", "From address")
	fs.BoolVar(&c.UseTLS, "tls", true, "Use STARTTLS")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return newExitError(ExitInvalidUsage, "usage: wombat email add NAME --host HOST --from ADDR")
	}
	c.Name = fs.Arg(0)
	if c.SMTPHost == "" || c.FromAddr == "" {
		return newExitError(ExitInvalidUsage, "--host and --from are required")
	}
	if c.SMTPPort <= 0 {
		return newExitError(ExitInvalidUsage, "--port must be positive")
	}
	c.CreatedAt = a.now().UTC()

	svc, err := a.open(ctx, e)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Emails.SaveEmailConfig(ctx, c); err != nil {
		return wrapExitError(ExitGenericFailure, err)
	}
	fmt.Fprintf(a.Stdout, "Email config %q saved.\n", c.Name)
	return nil
}

func (a *App) emailList(ctx context.Context, e env, args []string) error {
	if err := parseFlags(a.flagSet("email list"), args); err != nil {
		return err
	}

	svc, err := a.open(ctx, e)
	if err != nil {
		return err
	}
	defer svc.Close()

	list, err := svc.Emails.ListEmailConfigs(ctx)
	if err != nil {
		return wrapExitError(ExitGenericFailure, err)
	}
	if e.JSON {
		redacted := make([]model.EmailConfig, 0, len(list))
		for _, c := range list {
			redacted = append(redacted, c.Redacted())
		}
		return writeJSON(a.Stdout, redacted)
	}
	printEmailConfigs(a.Stdout, list)
	return nil
}

func (a *App) emailRemove(ctx context.Context, e env, args []string) error {
	if len(args) != 1 {
		return newExitError(ExitInvalidUsage, "usage: wombat email remove NAME")
	}

	svc, err := a.open(ctx, e)
	if err != nil {
		return err
	}
	defer svc.Close()

	removed, err := svc.Emails.RemoveEmailConfig(ctx, args[0])
	if err != nil {
		return wrapExitError(ExitGenericFailure, err)
	}
	if !removed {
		return newExitError(ExitGenericFailure, "email config %q not found", args[0])
	}
	fmt.Fprintf(a.Stdout, "Email config %q removed.\n", args[0])
	return nil
}
