package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultResendURL = "https://api.resend.com/emails"

// Resend sends email through the Resend HTTP API.
type Resend struct {
	apiKey   string
	from     string
	endpoint string
	client   *http.Client
}

// ResendOption customises a Resend sender.
type ResendOption func(*Resend)

// WithEndpoint points the sender at a different API URL.
func WithEndpoint(url string) ResendOption { return func(r *Resend) { r.endpoint = url } }

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ResendOption { return func(r *Resend) { r.client = c } }

func NewResend(apiKey, from string, opts ...ResendOption) *Resend {
	r := &Resend{
		apiKey:   apiKey,
		from:     from,
		endpoint: defaultResendURL,
		client:   &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (r *Resend) Send(ctx context.Context, to string, kind Kind, data Data) error {
	subject, html, err := Render(kind, data)
	if err != nil {
		return err
	}
	body, err := json.Marshal(resendRequest{From: r.from, To: []string{to}, Subject: subject, HTML: html})
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send email: resend returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
