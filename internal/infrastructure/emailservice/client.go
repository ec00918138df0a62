package emailservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/birthday-notifier/internal/config"
)

// Sender delivers a composed message to a user's email address through the
// external email service.
type Sender interface {
	Send(ctx context.Context, email, message string) error
}

type client struct {
	url  string
	http *http.Client
}

func NewClient(cfg *config.Config) Sender {
	return &client{
		url:  cfg.EmailServiceURL,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

type payload struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Send POSTs {email, message} to the email service. Any non-2xx status is a
// delivery failure, same as a transport-level error.
func (c *client) Send(ctx context.Context, email, message string) error {
	body, err := json.Marshal(payload{Email: email, Message: message})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("email service: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}
	return nil
}
