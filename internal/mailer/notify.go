package mailer

import (
	"errors"
	"fmt"

	"github.com/hushline/hushline/internal/model"
)

const (
	notificationSubject = "New Hush Line message received"
	genericBody         = "You have a new Hush Line message! Please log in to read it."
)

var ErrNoRelay = errors.New("mailer: no SMTP relay configured")

type enqueuer interface {
	Enqueue(cfg *Config, msg Message) error
}

// Notifier tells users about new messages.
type Notifier struct {
	queue    enqueuer
	defaults *Config
	decrypt  func(string) (string, error)
}

// NewNotifier returns a Notifier. defaults is the instance relay and may be
// nil; decrypt recovers stored SMTP passwords.
func NewNotifier(q enqueuer, defaults *Config, decrypt func(string) (string, error)) *Notifier {
	return &Notifier{queue: q, defaults: defaults, decrypt: decrypt}
}

// MessageReceived queues a notification for u when the user opted in.
// content is the stored message, already encrypted if u has a key.
func (n *Notifier) MessageReceived(u *model.User, content string) error {
	if !u.EnableEmailNotifications || u.Email == "" {
		return nil
	}

	cfg, err := n.relayFor(u)
	if err != nil {
		return err
	}

	return n.queue.Enqueue(cfg, Message{
		To:      []string{u.Email},
		Subject: notificationSubject,
		Body:    NotificationBody(u, content),
	})
}

func (n *Notifier) relayFor(u *model.User) (*Config, error) {
	if u.HasCustomSMTP() {
		password, err := n.decrypt(u.SMTPPassword)
		if err != nil {
			return nil, fmt.Errorf("mailer: decrypt smtp password: %w", err)
		}
		return &Config{
			Host:        u.SMTPServer,
			Port:        u.SMTPPort,
			Username:    u.SMTPUsername,
			Password:    password,
			FromAddress: u.SMTPSender,
			Encryption:  u.SMTPEncryption,
		}, nil
	}
	if n.defaults == nil {
		return nil, ErrNoRelay
	}
	return n.defaults, nil
}

// NotificationBody includes the message only when the user asked for it and
// has a PGP key, so the content is never mailed in plaintext.
func NotificationBody(u *model.User, content string) string {
	if u.EmailIncludeMessageContent && u.PGPKey != "" && content != "" {
		return content
	}
	return genericBody
}
