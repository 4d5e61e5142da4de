package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Result describes one delivery attempt.
type Result struct {
	StatusCode int
	Duration   time.Duration
}

// Sender posts signed JSON bodies.
type Sender struct {
	client          *http.Client
	signatureHeader string
	timeout         time.Duration
}

func NewSender(client *http.Client, signatureHeader string, timeout time.Duration) *Sender {
	if client == nil {
		client = &http.Client{}
	}
	if signatureHeader == "" {
		signatureHeader = DefaultSignatureHeader
	}
	return &Sender{
		client:          client,
		signatureHeader: signatureHeader,
		timeout:         timeout,
	}
}

// Send posts body to url. Only HTTP 200 counts as delivered; any other status
// or transport failure is returned as an error together with what is known.
func (s *Sender) Send(ctx context.Context, url, secret string, body []byte) (Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(s.signatureHeader, Sign(secret, body))

	start := time.Now()
	resp, err := s.client.Do(req)
	result := Result{Duration: time.Since(start)}
	if err != nil {
		return result, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	result.StatusCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return result, nil
}
