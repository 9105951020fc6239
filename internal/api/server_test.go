package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/markbook/internal/config"
	"github.com/IshaanNene/markbook/internal/observability"
	"github.com/IshaanNene/markbook/internal/storage"
	"github.com/IshaanNene/markbook/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newTestServer(t *testing.T, store storage.Store) (*httptest.Server, *observability.Metrics) {
	t.Helper()
	cfg := config.DefaultConfig()
	metrics := observability.NewMetrics(testLogger)
	srv := NewServer(cfg.Server, cfg.Metrics, store, metrics, testLogger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, metrics
}

func sqliteStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"), testLogger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

const twoRecords = `[
  {"tweet_id":"1","url":"https://x.com/a/status/1","text":"one","author_name":null,"author_handle":"a","created_at":null,"media_urls":[],"like_count":1,"retweet_count":0,"reply_count":0},
  {"tweet_id":"2","url":"https://x.com/b/status/2","text":"two","author_name":"B","author_handle":"b","created_at":"2024-01-01T00:00:00.000Z","media_urls":["https://pbs.twimg.com/media/x.jpg"],"like_count":0,"retweet_count":3,"reply_count":4}
]`

func post(t *testing.T, url, encoding string, body []byte) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/api/bookmarks", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestReceiveBookmarks(t *testing.T) {
	ts, metrics := newTestServer(t, sqliteStore(t))

	resp, out := post(t, ts.URL, "", []byte(twoRecords))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, out)
	}
	if out["count"] != float64(2) || out["total"] != float64(2) {
		t.Errorf("unexpected response %v", out)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header")
	}

	// Resubmitting upserts rather than duplicating.
	_, out = post(t, ts.URL, "", []byte(twoRecords))
	if out["count"] != float64(2) || out["total"] != float64(2) {
		t.Errorf("expected upsert, got %v", out)
	}
	if got := metrics.RecordsReceived.Load(); got != 4 {
		t.Errorf("expected 4 records received, got %d", got)
	}
}

func TestReceiveBookmarksCompressed(t *testing.T) {
	ts, _ := newTestServer(t, sqliteStore(t))

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	gw.Write([]byte(twoRecords))
	gw.Close()

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	bw.Write([]byte(twoRecords))
	bw.Close()

	for encoding, body := range map[string][]byte{"gzip": gz.Bytes(), "br": br.Bytes()} {
		resp, out := post(t, ts.URL, encoding, body)
		if resp.StatusCode != http.StatusOK || out["count"] != float64(2) {
			t.Errorf("%s: unexpected response %d %v", encoding, resp.StatusCode, out)
		}
	}
}

func TestReceiveBookmarksRejectsNonArray(t *testing.T) {
	ts, metrics := newTestServer(t, sqliteStore(t))

	for _, body := range []string{`{"tweet_id":"1"}`, `"x"`, ``, `[{"tweet_id":1}]`} {
		resp, out := post(t, ts.URL, "", []byte(body))
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, resp.StatusCode)
		}
		if out["error"] != "Expected a JSON array" {
			t.Errorf("body %q: unexpected error %v", body, out["error"])
		}
	}
	if metrics.BatchesRejected.Load() != 4 {
		t.Errorf("expected 4 rejected batches, got %d", metrics.BatchesRejected.Load())
	}
}

func TestReceiveBookmarksRequiresID(t *testing.T) {
	ts, _ := newTestServer(t, sqliteStore(t))

	resp, out := post(t, ts.URL, "", []byte(`[{"url":"https://x.com/a/status/1"}]`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if !strings.Contains(out["error"].(string), "tweet_id") {
		t.Errorf("unexpected error %v", out["error"])
	}
}

func TestReceiveBookmarksUnsupportedEncoding(t *testing.T) {
	ts, _ := newTestServer(t, sqliteStore(t))

	resp, _ := post(t, ts.URL, "zstd", []byte(twoRecords))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

type failingStore struct {
	storage.Store
}

func (failingStore) Name() string { return "failing" }

func (failingStore) Upsert(ctx context.Context, records []types.Record) (int, error) {
	return 0, &types.StorageError{Backend: "failing", Err: errors.New("db unavailable")}
}

func TestReceiveBookmarksStoreFailure(t *testing.T) {
	ts, metrics := newTestServer(t, failingStore{})

	resp, out := post(t, ts.URL, "", []byte(twoRecords))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if !strings.Contains(out["error"].(string), "db unavailable") {
		t.Errorf("unexpected error %v", out["error"])
	}
	if metrics.StorageErrors.Load() != 1 {
		t.Errorf("expected storage error counted")
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, sqliteStore(t))
	post(t, ts.URL, "", []byte(twoRecords))

	resp, err := http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var stats storage.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Total != 2 || stats.Authors != 2 || stats.Uncategorized != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestSearchBookmarks(t *testing.T) {
	ts, _ := newTestServer(t, sqliteStore(t))
	post(t, ts.URL, "", []byte(twoRecords))

	tests := []struct {
		name   string
		query  string
		status int
		want   string
	}{
		{"default newest first", "", http.StatusOK, "2,1"},
		{"oldest first", "?sort=oldest", http.StatusOK, "1,2"},
		{"most discussed", "?sort=discussed", http.StatusOK, "2,1"},
		{"most liked", "?sort=liked", http.StatusOK, "1,2"},
		{"text search", "?search=TWO", http.StatusOK, "2"},
		{"author filter", "?author=%40a", http.StatusOK, "1"},
		{"category filter", "?category=Humor", http.StatusOK, ""},
		{"limit", "?sort=liked&limit=1", http.StatusOK, "1"},
		{"zero limit returns all", "?limit=0", http.StatusOK, "2,1"},
		{"bad sort", "?sort=random", http.StatusBadRequest, ""},
		{"bad limit", "?limit=-3", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/api/bookmarks" + tt.query)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			if tt.status != http.StatusOK {
				return
			}

			var got []storage.Bookmark
			if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			ids := make([]string, 0, len(got))
			for _, b := range got {
				ids = append(ids, b.ID)
			}
			if strings.Join(ids, ",") != tt.want {
				t.Errorf("got %v, want %s", ids, tt.want)
			}
		})
	}
}

func TestSearchBookmarksIncludesCategory(t *testing.T) {
	st := sqliteStore(t)
	ts, _ := newTestServer(t, st)
	post(t, ts.URL, "", []byte(twoRecords))
	if _, err := st.SetCategories(context.Background(), map[string]string{"2": "Humor"}); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.URL + "/api/bookmarks?category=Humor")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0]["tweet_id"] != "2" || got[0]["category"] != "Humor" {
		t.Errorf("unexpected bookmarks %v", got)
	}
}

func TestDeleteBookmark(t *testing.T) {
	ts, _ := newTestServer(t, sqliteStore(t))
	post(t, ts.URL, "", []byte(twoRecords))

	del := func(id string) int {
		req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/bookmarks/"+id, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := del("1"); code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	if code := del("1"); code != http.StatusNotFound {
		t.Errorf("expected 404 for missing bookmark, got %d", code)
	}

	resp, err := http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var stats storage.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("expected total 1 after delete, got %d", stats.Total)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t, sqliteStore(t))
	post(t, ts.URL, "", []byte(twoRecords))

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "markbook_records_received_total 2") {
		t.Errorf("expected received counter in metrics output:\n%s", buf.String())
	}
}

func TestPreflight(t *testing.T) {
	ts, _ := newTestServer(t, sqliteStore(t))

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/bookmarks", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "POST") {
		t.Error("expected POST in allowed methods")
	}
}
