// Package marketdata implements the ticker-addressed backends behind the
// API-source extractor: Financial Modeling Prep, SEC EDGAR XBRL company facts
// and local fundamentals snapshots.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"valuation_data/pkg/core/extract"
)

// getJSON performs a GET and decodes a JSON body into v, mapping HTTP
// failures onto the extractor error taxonomy.
func getJSON(ctx context.Context, client *http.Client, source, url string, headers map[string]string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return extract.Upstream(source, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	for k, val := range headers {
		req.Header.Set(k, val)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		return extract.Upstream(source, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return extract.RateLimited(source, retryAfter(resp.Header.Get("Retry-After")),
			fmt.Errorf("%s returned status %d", redact(url), resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return extract.Unavailable(source, "%s returned status 404", redact(url))
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return extract.Upstream(source, fmt.Errorf("%s returned status %d: %s", redact(url), resp.StatusCode, strings.TrimSpace(string(body))))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return extract.Upstream(source, fmt.Errorf("failed to read response: %w", err))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return extract.Malformed(source, fmt.Errorf("failed to parse response from %s: %w", redact(url), err))
	}
	return nil
}

// retryAfter understands both delta-seconds and HTTP-date forms.
func retryAfter(h string) time.Duration {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(h); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// redact strips query strings so API keys never reach error messages or logs.
func redact(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}
