package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"github.com/sendit/parcel-service/internal/core/ports"
)

// Config holds SMTP connection settings. Auth is skipped when Username is empty.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPMailer delivers plain-text email over SMTP.
type SMTPMailer struct {
	client *gomail.Client
	from   string
	name   string
}

func NewSMTPMailer(cfg Config) (*SMTPMailer, error) {
	opts := []gomail.Option{gomail.WithTLSPolicy(gomail.TLSOpportunistic)}
	if cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPMailer{client: client, from: cfg.From, name: cfg.FromName}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, e ports.Email) error {
	msg, err := buildMessage(m.from, m.name, e)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func buildMessage(from, fromName string, e ports.Email) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if fromName != "" {
		if err := msg.FromFormat(fromName, from); err != nil {
			return nil, fmt.Errorf("invalid sender address: %w", err)
		}
	} else if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}

	if e.Name != "" {
		if err := msg.AddToFormat(e.Name, e.To); err != nil {
			return nil, fmt.Errorf("invalid recipient address: %w", err)
		}
	} else if err := msg.To(e.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}

	msg.Subject(e.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, e.Body)
	return msg, nil
}
