// Package mail delivers outbound email through SMTP, Amazon SES, or the log.
package mail

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

type Message struct {
	To       string
	Subject  string
	TextBody string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// From is the envelope sender shared by the delivering backends.
type From struct {
	Name  string
	Email string
}

func (f From) Address() string {
	if f.Name == "" {
		return f.Email
	}
	return fmt.Sprintf("%s <%s>", f.Name, f.Email)
}

// LogSender writes messages to the log instead of delivering them.
// Intended for development; bodies may contain reset links.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.TextBody).
		Msg("mail not delivered (log backend)")
	return nil
}

const passwordResetSubject = "CareCrypt - Password Reset Request"

// PasswordResetMessage builds the reset email for the given link.
func PasswordResetMessage(to, username, link string) Message {
	body := fmt.Sprintf(`Hi %s,

You requested a password reset for your CareCrypt account.

Click the link below to reset your password (valid for 1 hour):
%s

If you did not request this, please ignore this email.

- CareCrypt
`, username, link)

	return Message{To: to, Subject: passwordResetSubject, TextBody: body}
}
