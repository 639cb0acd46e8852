package model

import (
	"fmt"
	"html/template"
)

// MessageStatus is the reply state a recipient assigns to a message. The
// zero value is not a valid status; use DefaultMessageStatus.
type MessageStatus string

const (
	StatusPending  MessageStatus = "pending"
	StatusAccepted MessageStatus = "accepted"
	StatusDeclined MessageStatus = "declined"
	StatusArchived MessageStatus = "archived"
)

// MessageStatuses returns every status in declaration order.
func MessageStatuses() []MessageStatus {
	return []MessageStatus{StatusPending, StatusAccepted, StatusDeclined, StatusArchived}
}

// DefaultMessageStatus is the status of a freshly submitted message.
func DefaultMessageStatus() MessageStatus { return StatusPending }

// ParseMessageStatus maps a persisted token to its status.
func ParseMessageStatus(s string) (MessageStatus, error) {
	for _, st := range MessageStatuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: invalid MessageStatus %q", ErrInvalidValue, s)
}

// DisplayStr is the label shown for the status.
func (s MessageStatus) DisplayStr() string {
	switch s {
	case StatusPending:
		return "Waiting for Response"
	case StatusAccepted:
		return "Accepted"
	case StatusDeclined:
		return "Declined"
	case StatusArchived:
		return "Archived"
	}
	panic(unhandled("MessageStatus", string(s)))
}

func (s MessageStatus) Emoji() string {
	switch s {
	case StatusPending:
		return "⏳"
	case StatusAccepted:
		return "✅"
	case StatusDeclined:
		return "⛔"
	case StatusArchived:
		return "😴"
	}
	panic(unhandled("MessageStatus", string(s)))
}

// DefaultText is the explanatory text shown to the sender when the recipient
// has not written their own. It is HTML-escaped and safe to embed.
func (s MessageStatus) DefaultText() template.HTML {
	var text string
	switch s {
	case StatusPending:
		text = "Your message has been received. Please allow 24-72 hours for a reply. " +
			"You can check this page any time for an update."
	case StatusAccepted:
		text = "Thank you for contacting us. We're looking more into your case. " +
			"If you left a contact method we'll reach out to you there, too."
	case StatusDeclined:
		text = "Thank you for contacting us. Unfortunately we aren't able to move forward with your case. " +
			"Please check the Hush Line user directory to find someone else who might be able to help."
	case StatusArchived:
		text = "Your case has been archived. Contact us again if you need more help."
	default:
		panic(unhandled("MessageStatus", string(s)))
	}
	return template.HTML(template.HTMLEscapeString(text))
}

func (s MessageStatus) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

func (s *MessageStatus) UnmarshalText(b []byte) error {
	v, err := ParseMessageStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
