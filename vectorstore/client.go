// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Client is a minimal Qdrant REST client covering what the loader needs:
// collection bootstrap and point upserts.
type Client struct {
	baseURL    string
	apiKey     string
	collection string
	http       *http.Client
	logger     *slog.Logger
}

// Config holds Qdrant connection settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// New creates a Qdrant client from explicit configuration.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrNotConfigured)
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		cfg.Collection = "cartograph"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		http:       &http.Client{Timeout: cfg.Timeout},
		logger:     slog.Default().With("component", "vectorstore"),
	}, nil
}

// NewFromEnv creates a client from QDRANT_URL, QDRANT_API_KEY and
// QDRANT_COLLECTION. Credentials are read from the environment only here;
// the pipeline core never sees them.
func NewFromEnv() (*Client, error) {
	url := strings.TrimSpace(os.Getenv("QDRANT_URL"))
	if url == "" {
		return nil, fmt.Errorf("%w: QDRANT_URL not set", ErrNotConfigured)
	}
	return New(Config{
		BaseURL:    url,
		APIKey:     strings.TrimSpace(os.Getenv("QDRANT_API_KEY")),
		Collection: strings.TrimSpace(os.Getenv("QDRANT_COLLECTION")),
	})
}

// Collection returns the collection name the client writes to.
func (c *Client) Collection() string { return c.collection }

type collectionInfo struct {
	Status string `json:"status"`
}

type createCollectionRequest struct {
	Vectors vectorParams `json:"vectors"`
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

// EnsureCollection creates the collection with cosine distance if it does
// not exist yet.
func (c *Client) EnsureCollection(ctx context.Context, dims int) error {
	if dims < 1 {
		return fmt.Errorf("vectorstore: invalid dimension %d", dims)
	}

	u := c.baseURL + "/collections/" + c.collection
	_, status, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("vectorstore: describe collection http %d", status)
	}

	c.logger.Info("creating collection", "collection", c.collection, "dims", dims)
	body := createCollectionRequest{
		Vectors: vectorParams{Size: dims, Distance: "Cosine"},
	}
	raw, status, err := c.do(ctx, http.MethodPut, u, body)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("vectorstore: create collection http %d: %s", status, raw)
	}
	return nil
}

// Point is one vector with its cross-reference payload.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

type upsertRequest struct {
	Points []Point `json:"points"`
}

// upsertBatchSize bounds points per request.
const upsertBatchSize = 256

// UpsertPoints writes points in bounded batches, waiting for each batch to
// be applied. Upserts by point id are idempotent.
func (c *Client) UpsertPoints(ctx context.Context, points []Point) error {
	u := c.baseURL + "/collections/" + c.collection + "/points?wait=true"
	for start := 0; start < len(points); start += upsertBatchSize {
		batch := points[start:min(start+upsertBatchSize, len(points))]
		raw, status, err := c.do(ctx, http.MethodPut, u, upsertRequest{Points: batch})
		if err != nil {
			return err
		}
		if status < 200 || status >= 300 {
			return fmt.Errorf("vectorstore: upsert http %d: %s", status, raw)
		}
	}
	c.logger.Debug("upserted points", "collection", c.collection, "count", len(points))
	return nil
}

// do performs one JSON request and returns the raw body and status code.
// Non-2xx statuses are returned for the caller to interpret, not as errors.
func (c *Client) do(ctx context.Context, method, url string, body any) (string, int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return "", 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	return string(raw), resp.StatusCode, nil
}
