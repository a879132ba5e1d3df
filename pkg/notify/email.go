package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	// Addr is the smarthost as host:port.
	Addr string

	// Username and Password enable PLAIN auth when set.
	Username string
	Password string

	From string
	To   []string
}

// Email sends operator notifications over SMTP.
type Email struct {
	cfg  EmailConfig
	from string
	to   []string
	auth sasl.Client
	host string
}

// NewEmail validates cfg and creates an email channel.
func NewEmail(cfg EmailConfig) (*Email, error) {
	if cfg.Addr == "" {
		return nil, errors.New("smtp address cannot be empty")
	}
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", cfg.From, err)
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("at least one recipient is required")
	}
	to := make([]string, 0, len(cfg.To))
	for _, addr := range cfg.To {
		a, err := mail.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid recipient %q: %w", addr, err)
		}
		to = append(to, a.Address)
	}

	e := &Email{cfg: cfg, from: from.Address, to: to, host: "warden.local"}
	if cfg.Username != "" {
		e.auth = sasl.NewPlainClient("", cfg.Username, cfg.Password)
	}
	if at := strings.LastIndex(from.Address, "@"); at >= 0 {
		e.host = from.Address[at+1:]
	}
	return e, nil
}

func (e *Email) Name() string { return "email" }

// Send mails msg to the configured recipients. Message recipients are
// ignored.
func (e *Email) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := e.render(msg)
	if err != nil {
		return err
	}
	if err := smtp.SendMail(e.cfg.Addr, e.auth, e.from, e.to, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (e *Email) render(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Message-Id: <%s@%s>\r\n", uuid.NewString(), e.host)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&buf, "Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	qw := quotedprintable.NewWriter(&buf)
	if _, err := qw.Write([]byte(msg.Text)); err != nil {
		return nil, fmt.Errorf("write body: %w", err)
	}
	if err := qw.Close(); err != nil {
		return nil, fmt.Errorf("close body: %w", err)
	}
	return buf.Bytes(), nil
}
