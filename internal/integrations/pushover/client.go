package pushover

import (
	"context"
	"fmt"
	"strings"
	"time"

	gopushover "github.com/gregdel/pushover"
)

const (
	defaultTimeout = 10 * time.Second

	// maxMessageRunes is the Pushover API limit on message length.
	maxMessageRunes = 1024
)

// Client posts push notifications to the Pushover messages API.
type Client struct {
	app       *gopushover.Pushover
	recipient *gopushover.Recipient
	token     string
	user      string
	timeout   time.Duration
}

type Option func(*Client)

// WithTimeout bounds each Send. Zero or negative leaves only the caller's
// context in effect.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New creates a Client for the given application token and user key.
// Empty credentials are accepted; every Send then fails and Notify drops it.
func New(token, user string, opts ...Option) *Client {
	c := &Client{
		token:   strings.TrimSpace(token),
		user:    strings.TrimSpace(user),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.app = gopushover.New(c.token)
	c.recipient = gopushover.NewRecipient(c.user)
	return c
}

// Enabled reports whether both credentials are configured.
func (c *Client) Enabled() bool {
	return c != nil && c.token != "" && c.user != ""
}

// Notify attempts one delivery of text and discards every failure.
// Notifications are advisory and must never interrupt a conversation, so
// errors are neither returned nor logged.
func (c *Client) Notify(ctx context.Context, text string) {
	_ = c.Send(ctx, text)
}

// Send delivers text once and reports any delivery failure.
// The Pushover library has no context support, so the call runs in its own
// goroutine and Send returns as soon as ctx is done.
func (c *Client) Send(ctx context.Context, text string) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pushover: %w", err)
	}

	msg := gopushover.NewMessage(truncate(text, maxMessageRunes))
	done := make(chan error, 1)
	go func() {
		_, err := c.app.SendMessage(msg, c.recipient)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("pushover: send message: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pushover: %w", ctx.Err())
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
