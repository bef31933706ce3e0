// Package smtp delivers completion notifications as plain-text email.
package smtp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/target/opsdesk/internal/observability/notify"
)

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Config captures SMTP relay settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// From is used when a message carries no author.
	From string
	// Send overrides smtp.SendMail.
	Send SendFunc
}

// Client sends notify.Message values through an SMTP relay.
type Client struct {
	addr string
	auth smtp.Auth
	from string
	send SendFunc
}

// NewClient validates cfg and returns a ready client.
func NewClient(cfg Config) (*Client, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, errors.New("smtp host is required")
	}
	port := cfg.Port
	if port <= 0 {
		port = 25
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}

	send := cfg.Send
	if send == nil {
		send = smtp.SendMail
	}

	return &Client{
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		auth: auth,
		from: strings.TrimSpace(cfg.From),
		send: send,
	}, nil
}

// Send composes msg and hands it to the relay. Messages without recipients are dropped.
func (c *Client) Send(ctx context.Context, msg notify.Message) error {
	if len(msg.Recipients) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	author := strings.TrimSpace(msg.Author)
	if author == "" {
		author = c.from
	}
	if author == "" {
		return errors.New("smtp sender address is required")
	}

	raw, err := compose(author, msg)
	if err != nil {
		return err
	}

	if err := c.send(c.addr, c.auth, author, msg.Recipients, raw); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func compose(author string, msg notify.Message) ([]byte, error) {
	from, err := netmail.ParseAddress(author)
	if err != nil {
		return nil, fmt.Errorf("parse sender %q: %w", author, err)
	}

	to := make([]*mail.Address, 0, len(msg.Recipients))
	for _, r := range msg.Recipients {
		addr, err := netmail.ParseAddress(r)
		if err != nil {
			return nil, fmt.Errorf("parse recipient %q: %w", r, err)
		}
		to = append(to, addr)
	}

	var h mail.Header
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", to)
	if replyTo := strings.TrimSpace(msg.ReplyTo); replyTo != "" {
		addr, err := netmail.ParseAddress(replyTo)
		if err != nil {
			return nil, fmt.Errorf("parse reply-to %q: %w", replyTo, err)
		}
		h.SetAddressList("Reply-To", []*mail.Address{addr})
	}
	h.SetSubject(msg.Subject)
	date := msg.OccurredAt
	if date.IsZero() {
		date = time.Now()
	}
	h.SetDate(date)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message writer: %w", err)
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return nil, fmt.Errorf("write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message writer: %w", err)
	}
	return buf.Bytes(), nil
}
