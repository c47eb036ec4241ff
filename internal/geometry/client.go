// Package geometry talks to the external volume-extraction service. The
// service owns the actual mesh math; this client only ships bytes and reads
// back a volume in cm³.
package geometry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/gmarroquin/fabmarket/internal/models"
)

// Extractor derives the geometric volume of a 3D model file.
type Extractor interface {
	ExtractVolume(ctx context.Context, model []byte) (float64, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

type volumeResponse struct {
	VolumeCM3 float64 `json:"volume_cm3"`
}

// ExtractVolume posts the model bytes to the geometry service. Every
// failure mode wraps models.ErrUpstream; callers decide whether that is
// fatal or degrades to an unset volume.
func (c *Client) ExtractVolume(ctx context.Context, model []byte) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/volume", bytes.NewReader(model))
	if err != nil {
		return 0, fmt.Errorf("build volume request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("geometry service unreachable: %w", models.ErrUpstream)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("geometry service returned %d: %w", resp.StatusCode, models.ErrUpstream)
	}

	var out volumeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode volume response: %w", models.ErrUpstream)
	}

	// Mesh orientation can yield a negative signed volume; magnitude is
	// what matters for pricing.
	return math.Round(math.Abs(out.VolumeCM3)*100) / 100, nil
}
