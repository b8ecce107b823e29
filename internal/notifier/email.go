package notifier

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"crcbank/internal/model"
)

// ContactResolver maps an account to its owner's address.
type ContactResolver interface {
	ContactAddress(ctx context.Context, account string) (string, error)
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier mails notices to the account owner.
type EmailNotifier struct {
	Addr         string // host:port of the relay
	From         string
	SuperCluster string
	Contacts     ContactResolver
	Auth         smtp.Auth
	Send         SendFunc
}

// NewEmailNotifier creates a notifier that relays through host:port.
// Username may be empty for an unauthenticated relay.
func NewEmailNotifier(host string, port int, username, password, from, superCluster string, contacts ContactResolver) *EmailNotifier {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &EmailNotifier{
		Addr:         net.JoinHostPort(host, fmt.Sprint(port)),
		From:         from,
		SuperCluster: superCluster,
		Contacts:     contacts,
		Auth:         auth,
		Send:         smtp.SendMail,
	}
}

// Notify renders n and sends it. Delivery is attempted once.
func (e *EmailNotifier) Notify(ctx context.Context, n *model.Notice) error {
	to, err := e.Contacts.ContactAddress(ctx, n.Account)
	if err != nil {
		return fmt.Errorf("resolve contact: %w", err)
	}
	msg, err := Render(n, e.SuperCluster)
	if err != nil {
		return err
	}
	if err := e.Send(e.Addr, e.Auth, e.From, []string{to}, buildMIME(e.From, to, msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func buildMIME(from, to string, msg *Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}
