package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/diagnosis/stays-bookings/pkg/logger"
	"github.com/mailersend/mailersend-go"
)

// Message is one rendered e-mail.
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

type Service interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// MailerSend delivers through the MailerSend API.
type MailerSend struct {
	client *mailersend.Mailersend
	from   mailersend.From
}

func NewMailerSend(apiKey, fromName, fromEmail string) (*MailerSend, error) {
	if apiKey == "" || fromEmail == "" {
		return nil, errors.New("mailer disabled (missing MAILERSEND_API_KEY or MAILER_FROM)")
	}
	return &MailerSend{
		client: mailersend.NewMailersend(apiKey),
		from:   mailersend.From{Name: fromName, Email: fromEmail},
	}, nil
}

func (m *MailerSend) Send(ctx context.Context, msg Message) (string, error) {
	if strings.TrimSpace(msg.ToEmail) == "" {
		return "", errors.New("empty recipient email")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	email := m.client.Email.NewMessage()
	email.SetFrom(m.from)
	email.SetRecipients([]mailersend.Recipient{{Name: msg.ToName, Email: msg.ToEmail}})
	email.SetSubject(msg.Subject)
	if strings.TrimSpace(msg.Text) != "" {
		email.SetText(msg.Text)
	}
	if strings.TrimSpace(msg.HTML) != "" {
		email.SetHTML(msg.HTML)
	}

	res, err := m.client.Email.Send(ctx, email)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("mailersend error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return res.Header.Get("X-Message-Id"), nil
}

// Dev writes e-mails to the log instead of sending them.
type Dev struct{}

func (Dev) Send(ctx context.Context, msg Message) (string, error) {
	logger.InfoContext(ctx, "Dev mail", "to", msg.ToEmail, "subject", msg.Subject, "text", msg.Text)
	return "dev", nil
}
