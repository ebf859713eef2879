package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"wombat/internal/model"
)

// EmailSender mails a plain-text alert summary through one SMTP configuration.
type EmailSender struct {
	cfg model.EmailConfig
	to  []string
	// send overrides the SMTP transport picked from cfg.UseTLS; set in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailSender(cfg model.EmailConfig, to []string) *EmailSender {
	return &EmailSender{cfg: cfg, to: to}
}

func (s *EmailSender) Channel() string { return "email" }

// Send delivers one message to every recipient. With UseTLS the server must offer STARTTLS;
// otherwise smtp.SendMail upgrades only when it can.
func (s *EmailSender) Send(_ context.Context, t model.TriggeredAlert) error {
	if s.cfg.SMTPHost == "" || s.cfg.FromAddr == "" {
		return fmt.Errorf("email config %q: %w", s.cfg.Name, ErrNotConfigured)
	}
	if len(s.to) == 0 {
		return nil
	}

	var auth smtp.Auth
	if s.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPass, s.cfg.SMTPHost)
	}
	port := s.cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	addr := net.JoinHostPort(s.cfg.SMTPHost, strconv.Itoa(port))

	send := s.send
	if send == nil {
		send = smtp.SendMail
		if s.cfg.UseTLS {
			send = sendMailStartTLS
		}
	}
	if err := send(addr, auth, s.cfg.FromAddr, s.to, EmailMessage(s.cfg.FromAddr, s.to, t)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// EmailMessage builds the RFC 822 message for t.
func EmailMessage(from string, to []string, t model.TriggeredAlert) []byte {
	subject := fmt.Sprintf("Award Alert: %s → %s %s miles", t.Origin, t.Destination, model.FormatMiles(t.Miles))
	if t.IsNewLow {
		subject += " (new low)"
	}

	body := []string{
		t.Alert.Description(),
		"",
		fmt.Sprintf("Flight: %s on %s", t.FlightNo, t.FlightDate),
		fmt.Sprintf("Cabin: %s (%s)", t.Cabin.Display(), titleCase(string(t.Program))),
		fmt.Sprintf("Price: %s miles + $%s taxes", model.FormatMiles(t.Miles), t.Taxes.StringFixed(2)),
	}
	if t.IsNewLow && t.PrevLowMiles > 0 {
		body = append(body, fmt.Sprintf("Previous low: %s miles (down %.1f%%)", model.FormatMiles(t.PrevLowMiles), t.DropPct()))
	}

	msg := strings.Join([]string{
		"From: " + from,
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		strings.Join(body, "\r\n"),
	}, "\r\n")
	return []byte(msg)
}

// sendMailStartTLS is smtp.SendMail that refuses to continue in plaintext.
func sendMailStartTLS(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	c, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); !ok {
		return errors.New("smtp server does not support STARTTLS")
	}
	if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return err
	}
	if a != nil {
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
