// Package detection wraps the remote stove-detection service: one outbound
// HTTPS call per check, with the response classified into a structured result
// or an error the retry policy can inspect.
package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"stovewatch/internal/models"
)

// Detector is the capability the geofence monitor depends on.
type Detector interface {
	Check(ctx context.Context) (models.DetectionResult, error)
}

// Options are the tuning parameters forwarded with every trigger.
type Options struct {
	SensitivityTolerance float64 // knob-angle tolerance, service-defined units
	AngleThreshold       float64 // degrees past which a knob counts as on
	Verbose              bool    // ask the service for per-knob detail and images
}

// Client calls the remote detection service.
type Client struct {
	baseURL    string
	apiKey     string
	opts       Options
	httpClient *http.Client
}

const defaultTimeout = 30 * time.Second

// NewClient builds a detection client. A nil httpClient gets a default with a
// request timeout; the remote call involves live image capture and inference,
// so the timeout is generous.
func NewClient(baseURL, apiKey string, opts Options, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		opts:       opts,
		httpClient: httpClient,
	}
}

// triggerRequest is the wire shape of a detection trigger.
type triggerRequest struct {
	UseLiveCapture       bool    `json:"use_live_capture"`
	SensitivityTolerance float64 `json:"sensitivity_tolerance,omitempty"`
	AngleThreshold       float64 `json:"angle_threshold,omitempty"`
	Verbose              bool    `json:"verbose,omitempty"`
}

// detectResponse is the wire shape of a detection result. Error payloads carry
// only the error field.
type detectResponse struct {
	StoveOn        bool           `json:"stove_on"`
	Knobs          []knobResponse `json:"knobs,omitempty"`
	OnCount        int            `json:"on_count"`
	OffCount       int            `json:"off_count"`
	ErrorCount     int            `json:"error_count"`
	AnnotatedImage string         `json:"annotated_image,omitempty"`
	Error          string         `json:"error,omitempty"`
}

type knobResponse struct {
	Index      int     `json:"index"`
	State      string  `json:"state"`
	Confidence float64 `json:"confidence,omitempty"`
	AngleDeg   float64 `json:"angle_deg,omitempty"`
}

// APIError is a structured failure returned by the detection service itself,
// as opposed to a transport fault.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("detection service error (status %d): %s", e.StatusCode, e.Message)
}

// Check performs one detection attempt. It attaches the API key and
// cache-defeating headers so intermediaries never serve a stale result.
func (c *Client) Check(ctx context.Context) (models.DetectionResult, error) {
	body, err := json.Marshal(triggerRequest{
		UseLiveCapture:       true,
		SensitivityTolerance: c.opts.SensitivityTolerance,
		AngleThreshold:       c.opts.AngleThreshold,
		Verbose:              c.opts.Verbose,
	})
	if err != nil {
		return models.DetectionResult{}, fmt.Errorf("encode trigger: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", bytes.NewReader(body))
	if err != nil {
		return models.DetectionResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.DetectionResult{}, fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.DetectionResult{}, fmt.Errorf("truncated response: %w", err)
	}
	if len(raw) == 0 {
		return models.DetectionResult{}, fmt.Errorf("empty response body (status %d)", resp.StatusCode)
	}

	var decoded detectResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return models.DetectionResult{}, fmt.Errorf("malformed response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK || decoded.Error != "" {
		msg := decoded.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return models.DetectionResult{}, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	return toResult(decoded), nil
}

func toResult(d detectResponse) models.DetectionResult {
	res := models.DetectionResult{
		StoveIsOn:      d.StoveOn,
		OnKnobCount:    d.OnCount,
		TotalKnobCount: d.OnCount + d.OffCount + d.ErrorCount,
		ErrorKnobCount: d.ErrorCount,
		AnnotatedImage: d.AnnotatedImage,
		CheckedAt:      time.Now().UTC(),
	}
	for _, k := range d.Knobs {
		res.Knobs = append(res.Knobs, models.KnobResult{
			Index:      k.Index,
			State:      k.State,
			Confidence: k.Confidence,
			AngleDeg:   k.AngleDeg,
		})
	}
	return res
}
