// Package submit delivers a finished collection to the collector endpoint.
package submit

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/markbook/internal/config"
	"github.com/IshaanNene/markbook/internal/types"
)

// maxErrorBody bounds how much of a failed response is kept.
const maxErrorBody = 64 * 1024

// Client posts the collection as a JSON array in a single request.
// There is no retry: a failed submission fails the session.
type Client struct {
	endpoint    string
	compression string
	client      *http.Client
	logger      *slog.Logger
}

// New creates a submission client from cfg.
func New(cfg config.SubmitConfig, logger *slog.Logger) *Client {
	return &Client{
		endpoint:    cfg.Endpoint,
		compression: cfg.Compression,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With("component", "submit_client"),
	}
}

// Name identifies the sink in logs.
func (c *Client) Name() string { return c.endpoint }

// Submit sends records and returns the count the endpoint reports.
// Non-2xx responses return a *types.SubmitError carrying the body text.
func (c *Client) Submit(ctx context.Context, records []types.Record) (int, error) {
	if records == nil {
		records = []types.Record{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return 0, fmt.Errorf("encode records: %w", err)
	}

	body, encoding, err := compress(payload, c.compression)
	if err != nil {
		return 0, fmt.Errorf("compress payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return 0, &types.SubmitError{
			Endpoint:   c.endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(text),
		}
	}

	var result struct {
		Count *int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if result.Count == nil {
		return 0, fmt.Errorf("decode response: missing count")
	}

	c.logger.Info("submission accepted",
		"endpoint", c.endpoint,
		"sent", len(records),
		"count", *result.Count,
		"bytes", len(body),
		"encoding", encoding,
		"duration", time.Since(start),
	)
	return *result.Count, nil
}

// compress encodes payload for the Content-Encoding named by mode.
func compress(payload []byte, mode string) ([]byte, string, error) {
	var buf bytes.Buffer
	switch mode {
	case "", "none":
		return payload, "", nil
	case "gzip":
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(payload); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "gzip", nil
	case "br":
		w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
		if _, err := w.Write(payload); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "br", nil
	default:
		return nil, "", fmt.Errorf("unsupported compression %q", mode)
	}
}
