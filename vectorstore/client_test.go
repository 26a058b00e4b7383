package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointID_FormatsUUID(t *testing.T) {
	hash := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	id := PointID(hash)
	assert.Equal(t, "01234567-89ab-cdef-0123-456789abcdef", id)

	// Deterministic.
	assert.Equal(t, id, PointID(hash))
}

func TestEnsureCollection_CreatesWhenMissing(t *testing.T) {
	var created bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			http.NotFound(w, r)
		case r.Method == http.MethodPut:
			var req createCollectionRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, 64, req.Vectors.Size)
			assert.Equal(t, "Cosine", req.Vectors.Distance)
			created = true
			w.Write([]byte(`{"result": true, "status": "ok"}`))
		}
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Collection: "test"})
	require.NoError(t, err)
	require.NoError(t, c.EnsureCollection(context.Background(), 64))
	assert.True(t, created)
}

func TestEnsureCollection_NoopWhenPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`{"result": {}, "status": "ok"}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Collection: "test"})
	require.NoError(t, err)
	require.NoError(t, c.EnsureCollection(context.Background(), 64))
}

func TestUpsertPoints_Batches(t *testing.T) {
	var requests int
	var total int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "true", r.URL.Query().Get("wait"))

		var req upsertRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests++
		total += len(req.Points)
		w.Write([]byte(`{"result": {"status": "completed"}, "status": "ok"}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Collection: "test"})
	require.NoError(t, err)

	points := make([]Point, upsertBatchSize+10)
	for i := range points {
		points[i] = Point{ID: PointID("ab"), Vector: []float32{1, 2}}
	}
	require.NoError(t, c.UpsertPoints(context.Background(), points))
	assert.Equal(t, 2, requests)
	assert.Equal(t, len(points), total)
}

func TestUpsertPoints_SurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status": {"error": "bad vector size"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Collection: "test"})
	require.NoError(t, err)

	err = c.UpsertPoints(context.Background(), []Point{{ID: PointID("ff"), Vector: []float32{1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestNewFromEnv_RequiresURL(t *testing.T) {
	t.Setenv("QDRANT_URL", "")
	_, err := NewFromEnv()
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNew_ApiKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		w.Write([]byte(`{"status": "ok"}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "secret", Collection: "test"})
	require.NoError(t, err)
	require.NoError(t, c.EnsureCollection(context.Background(), 4))
}
