package model

import "time"

// User is an account. Its public identities are Usernames.
type User struct {
	ID                         string         `json:"id" db:"id"`
	IsAdmin                    bool           `json:"is_admin" db:"is_admin"`
	IsPremium                  bool           `json:"is_premium" db:"is_premium"`
	PGPKey                     string         `json:"-" db:"pgp_key"`
	Email                      string         `json:"email,omitempty" db:"email"`
	EnableEmailNotifications   bool           `json:"enable_email_notifications" db:"enable_email_notifications"`
	EmailIncludeMessageContent bool           `json:"email_include_message_content" db:"email_include_message_content"`
	SMTPServer                 string         `json:"smtp_server,omitempty" db:"smtp_server"`
	SMTPPort                   int            `json:"smtp_port,omitempty" db:"smtp_port"`
	SMTPUsername               string         `json:"smtp_username,omitempty" db:"smtp_username"`
	SMTPPassword               string         `json:"-" db:"smtp_password"`
	SMTPSender                 string         `json:"smtp_sender,omitempty" db:"smtp_sender"`
	SMTPEncryption             SMTPEncryption `json:"smtp_encryption" db:"smtp_encryption"`
	CreatedAt                  time.Time      `json:"created_at" db:"created_at"`
	PrimaryUsername            string         `json:"primary_username" db:"primary_username"`
	PrimaryUsernameVerified    bool           `json:"is_verified" db:"primary_verified"`
}

// HasCustomSMTP reports whether notifications go through the user's own
// SMTP server instead of the instance default.
func (u *User) HasCustomSMTP() bool {
	return u.SMTPServer != "" && u.SMTPPort != 0
}

// Username is a public handle. Every user has exactly one primary username
// and may own aliases.
type Username struct {
	ID              string    `json:"id" db:"id"`
	UserID          string    `json:"-" db:"user_id"`
	Username        string    `json:"username" db:"username"`
	DisplayName     string    `json:"display_name" db:"display_name"`
	Bio             string    `json:"bio" db:"bio"`
	IsPrimary       bool      `json:"is_primary" db:"is_primary"`
	IsVerified      bool      `json:"is_verified" db:"is_verified"`
	ShowInDirectory bool      `json:"show_in_directory" db:"show_in_directory"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Message is a submission addressed to a Username.
type Message struct {
	ID              string        `json:"id" db:"id"`
	UsernameID      string        `json:"username_id" db:"username_id"`
	Username        string        `json:"username" db:"username"`
	UserID          string        `json:"-" db:"user_id"`
	Content         string        `json:"content" db:"content"`
	ReplySlug       string        `json:"reply_slug" db:"reply_slug"`
	Status          MessageStatus `json:"status" db:"status"`
	StatusChangedAt time.Time     `json:"status_changed_at" db:"status_changed_at"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}

// MessageStatusText is a user's replacement for a status's default text.
type MessageStatusText struct {
	UserID   string        `json:"-" db:"user_id"`
	Status   MessageStatus `json:"status" db:"status"`
	Markdown string        `json:"markdown" db:"markdown"`
}

// InviteCode gates registration when codes are required. Codes are single
// use.
type InviteCode struct {
	ID        string    `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	ExpiresAt time.Time `json:"expires_at" db:"-"`
}
