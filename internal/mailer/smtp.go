package mailer

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/hushline/hushline/internal/model"
)

const dialTimeout = 15 * time.Second

// Config describes one SMTP relay.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromName    string
	FromAddress string
	Encryption  model.SMTPEncryption
}

func (c *Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type Message struct {
	To      []string
	Subject string
	Body    string
}

// Mailer delivers messages over SMTP.
type Mailer struct {
	sendFn func(cfg *Config, msg Message) error
}

func New() *Mailer {
	m := &Mailer{}
	m.sendFn = m.deliver
	return m
}

// Send delivers msg through the relay described by cfg.
func (m *Mailer) Send(cfg *Config, msg Message) error {
	if cfg == nil || cfg.Host == "" {
		return fmt.Errorf("mailer: not configured")
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("mailer: no recipients")
	}
	return m.sendFn(cfg, msg)
}

func (m *Mailer) deliver(cfg *Config, msg Message) error {
	c, err := dial(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
			return fmt.Errorf("mailer: auth: %w", err)
		}
	}

	if err := c.Mail(cfg.FromAddress); err != nil {
		return fmt.Errorf("mailer: MAIL FROM: %w", err)
	}
	for _, rcpt := range msg.To {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("mailer: RCPT TO: %w", err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("mailer: DATA: %w", err)
	}
	if _, err := w.Write([]byte(formatMessage(cfg, msg))); err != nil {
		w.Close()
		return fmt.Errorf("mailer: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mailer: close body: %w", err)
	}
	return c.Quit()
}

// dial opens a client using implicit TLS for SSL, or a plain connection
// upgraded with STARTTLS.
func dial(cfg *Config) (*smtp.Client, error) {
	tlsConfig := &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	dialer := &net.Dialer{Timeout: dialTimeout}

	switch cfg.Encryption {
	case model.SMTPEncryptionSSL:
		conn, err := tls.DialWithDialer(dialer, "tcp", cfg.addr(), tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("mailer: dial tls: %w", err)
		}
		c, err := smtp.NewClient(conn, cfg.Host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("mailer: smtp handshake: %w", err)
		}
		return c, nil

	case model.SMTPEncryptionStartTLS, "":
		conn, err := dialer.Dial("tcp", cfg.addr())
		if err != nil {
			return nil, fmt.Errorf("mailer: dial: %w", err)
		}
		c, err := smtp.NewClient(conn, cfg.Host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("mailer: smtp handshake: %w", err)
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			c.Close()
			return nil, fmt.Errorf("mailer: starttls: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("mailer: unsupported encryption %q", cfg.Encryption)
}

func formatMessage(cfg *Config, msg Message) string {
	from := cfg.FromAddress
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return b.String()
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", "", "\n", " ").Replace(s)
}
