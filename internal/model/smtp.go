package model

import "fmt"

// SMTPEncryption selects how an outbound SMTP connection is secured.
type SMTPEncryption string

const (
	SMTPEncryptionSSL      SMTPEncryption = "SSL"
	SMTPEncryptionStartTLS SMTPEncryption = "StartTLS"
)

func DefaultSMTPEncryption() SMTPEncryption { return SMTPEncryptionStartTLS }

func ParseSMTPEncryption(s string) (SMTPEncryption, error) {
	switch SMTPEncryption(s) {
	case SMTPEncryptionSSL, SMTPEncryptionStartTLS:
		return SMTPEncryption(s), nil
	}
	return "", fmt.Errorf("%w: invalid SMTPEncryption %q", ErrInvalidValue, s)
}

func (e SMTPEncryption) MarshalText() ([]byte, error) { return []byte(e), nil }

func (e *SMTPEncryption) UnmarshalText(b []byte) error {
	v, err := ParseSMTPEncryption(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}
