// Package provider holds the third-party API clients. Each capability variant
// performs exactly one upstream HTTP call and classifies the raw response into
// the media error taxonomy at this boundary; nothing above ever sees a raw
// transport error.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"relaybot/internal/media"
	"relaybot/pkg/logx"
)

const defaultTimeout = 30 * time.Second

// apiClient wraps one upstream host (base URL + auth headers).
type apiClient struct {
	name string
	http *resty.Client
	log  logx.Logger
}

func newAPIClient(name, baseURL string, headers map[string]string, timeout time.Duration, log logx.Logger) *apiClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeaders(headers).
		SetTimeout(timeout)
	if log.IsZero() {
		log = logx.Nop()
	}
	return &apiClient{name: name, http: c, log: log}
}

// getJSON performs the call and classifies the response:
//
//	404              -> ErrAccountNotExist (permanent)
//	500              -> ErrEmptyResults (retriable)
//	504              -> ErrTimeout
//	other non-200    -> ErrProvider
//	empty body       -> ErrAccountIsPrivate (provider convention)
//	malformed JSON   -> ErrProvider
func (c *apiClient) getJSON(ctx context.Context, edge string, query map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(edge)
	if err != nil {
		return fmt.Errorf("%s request failed (%v): %w", c.name, err, media.ErrProvider)
	}

	switch resp.StatusCode() {
	case http.StatusNotFound:
		return fmt.Errorf("%s found nothing: %w", c.name, media.ErrAccountNotExist)
	case http.StatusInternalServerError:
		return fmt.Errorf("%s found nothing: %w", c.name, media.ErrEmptyResults)
	case http.StatusGatewayTimeout:
		return fmt.Errorf("%s: %w", c.name, media.ErrTimeout)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%s non-200 response (%d): %w", c.name, resp.StatusCode(), media.ErrProvider)
	}

	body := bytes.TrimSpace(resp.Body())
	if len(body) == 0 {
		// This upstream answers 200 with an empty body for private accounts.
		return fmt.Errorf("%s: %w", c.name, media.ErrAccountIsPrivate)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s non-JSON response (%d): %w", c.name, resp.StatusCode(), media.ErrProvider)
	}
	return nil
}
