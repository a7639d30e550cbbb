package location

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"stovewatch/internal/models"
)

// HTTPProvider polls an endpoint that reports the companion device's current
// position as a JSON coordinate (OwnTracks-style setups).
type HTTPProvider struct {
	url        string
	httpClient *http.Client
}

const pollTimeout = 10 * time.Second

func NewHTTPProvider(url string, httpClient *http.Client) *HTTPProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: pollTimeout}
	}
	return &HTTPProvider{url: url, httpClient: httpClient}
}

// GetCurrentLocation fetches one fix. Any transport or decode problem reports
// as ErrNoFix-equivalent for the monitor: the wrapped error is returned for
// logging, and the coordinate is nil.
func (p *HTTPProvider) GetCurrentLocation(ctx context.Context) (*models.Coordinate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build location request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch location: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch location: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read location response: %w", err)
	}

	var loc models.Coordinate
	if err := json.Unmarshal(raw, &loc); err != nil {
		return nil, fmt.Errorf("decode location response: %w", err)
	}
	if !loc.HasFix() {
		return nil, ErrNoFix
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = time.Now().UTC()
	}
	return &loc, nil
}
