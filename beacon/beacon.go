// Package beacon delivers click events to the ingestion endpoint with
// fire-and-forget semantics: the send must never delay or break the
// navigation that triggered it.
package beacon

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"portfolio-analytics/config"
	"portfolio-analytics/model"

	"github.com/rs/zerolog/log"
)

const trackPath = "/track-external"

// Client posts click payloads to a remote collector.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a beacon client from the ingestion config.
func NewClient(cfg config.IngestConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send delivers the payload in the background. Failures are logged at
// debug level and otherwise invisible to the caller.
func (c *Client) Send(payload model.ClickPayload) {
	go func() {
		if err := c.SendSync(context.Background(), payload); err != nil {
			log.Debug().Err(err).Str("url", payload.URL).Msg("Click beacon failed")
		}
	}()
}

// SendSync delivers the payload and reports the outcome. The response
// body is discarded; only transport errors surface.
func (c *Client) SendSync(ctx context.Context, payload model.ClickPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+trackPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}
