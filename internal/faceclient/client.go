package faceclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client calls a self-hosted face recognition microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. The scheduler bounds each call with its own timeout;
// the HTTP timeout here is only a backstop.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name implements Recognizer.
func (c *Client) Name() string {
	if c.Skip {
		return "face-service(mock)"
	}
	return "face-service"
}

type identifyRequest struct {
	Probe   string               `json:"probe"`
	Gallery []identifyGalleryRef `json:"gallery"`
}

type identifyGalleryRef struct {
	Label string `json:"label"`
	Image string `json:"image"`
}

// Identify sends the probe and gallery to POST /identify.
func (c *Client) Identify(ctx context.Context, probe []byte, gallery []GalleryEntry) ([]Match, error) {
	if c.Skip {
		// Mock mode: the first gallery entry always matches.
		if len(gallery) == 0 {
			return nil, nil
		}
		return []Match{{Label: gallery[0].Label, Confidence: 0.95}}, nil
	}
	if len(probe) == 0 {
		return nil, fmt.Errorf("%w: probe image required", ErrRecognizer)
	}

	payload := identifyRequest{
		Probe:   base64.StdEncoding.EncodeToString(probe),
		Gallery: make([]identifyGalleryRef, 0, len(gallery)),
	}
	for _, g := range gallery {
		payload.Gallery = append(payload.Gallery, identifyGalleryRef{
			Label: g.Label,
			Image: base64.StdEncoding.EncodeToString(g.Image),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/identify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: face service request failed: %w", ErrRecognizer, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrRecognizer, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: face service error %s: %s", ErrRecognizer, resp.Status, string(respBody))
	}

	return ParseMatches(respBody)
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}

	return nil
}
