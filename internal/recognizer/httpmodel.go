package recognizer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"time"
)

// HTTPModel calls a model served behind an HTTP endpoint: the stemmed
// image goes out as base64 PNG in a JSON body, the label-index sequence
// comes back.
type HTTPModel struct {
	url     string
	token   string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPModel builds a client for the given endpoint. token, when
// non-empty, is sent as a bearer Authorization header. timeout bounds each
// prediction request (default 30s).
func NewHTTPModel(url, token string, timeout time.Duration) (*HTTPModel, error) {
	if url == "" {
		return nil, fmt.Errorf("model endpoint URL must be set")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPModel{
		url:     url,
		token:   token,
		timeout: timeout,
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

type predictRequest struct {
	ImageB64 string `json:"image_b64"`
}

type predictResponse struct {
	Labels []int  `json:"labels"`
	Error  string `json:"error,omitempty"`
}

// Predict sends the image to the model endpoint and returns the predicted
// label indices.
func (m *HTTPModel) Predict(ctx context.Context, img *image.Gray) ([]int, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode model input: %w", err)
	}

	body, err := json.Marshal(predictRequest{
		ImageB64: base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode model request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build model request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read model response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model endpoint returned %s: %s", resp.Status, truncate(data, 200))
	}

	var out predictResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("malformed model response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("model error: %s", out.Error)
	}
	return out.Labels, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
