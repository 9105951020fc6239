package categorize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/IshaanNene/markbook/internal/config"
	"github.com/IshaanNene/markbook/internal/storage"
	"github.com/IshaanNene/markbook/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type memStore struct {
	mu         sync.Mutex
	pending    []storage.Bookmark
	categories map[string]string
}

func newMemStore(n int) *memStore {
	s := &memStore{categories: map[string]string{}}
	for i := 1; i <= n; i++ {
		s.pending = append(s.pending, storage.Bookmark{Record: types.Record{
			ID:           fmt.Sprint(i),
			Text:         fmt.Sprintf("post %d", i),
			AuthorHandle: types.StringPtr("user"),
		}})
	}
	return s
}

func (s *memStore) Uncategorized(ctx context.Context, limit int) ([]storage.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Bookmark
	for _, b := range s.pending {
		if _, done := s.categories[b.ID]; done {
			continue
		}
		out = append(out, b)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) SetCategories(ctx context.Context, categories map[string]string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range categories {
		s.categories[id] = c
	}
	return len(categories), nil
}

// scriptedLLM answers each batch by echoing its ids with a fixed category.
type scriptedLLM struct {
	calls    int
	category string
	failOn   int
	fenced   bool
	prompts  []string
}

func (l *scriptedLLM) Generate(ctx context.Context, system, prompt string) (string, error) {
	l.calls++
	l.prompts = append(l.prompts, prompt)
	if l.calls == l.failOn {
		return "", errors.New("model overloaded")
	}

	var items []map[string]string
	for _, line := range strings.Split(prompt, "\n\n") {
		id := strings.TrimPrefix(strings.SplitN(line, "]", 2)[0], "[ID=")
		items = append(items, map[string]string{"id": id, "category": l.category})
	}
	b, _ := json.Marshal(items)
	if l.fenced {
		return "```json\n" + string(b) + "\n```", nil
	}
	return string(b), nil
}

func TestCategorizerBatches(t *testing.T) {
	store := newMemStore(45)
	llm := &scriptedLLM{category: "Science"}

	res, err := New(llm, store, Options{BatchSize: 20}, nil, nil, testLogger).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if llm.calls != 3 {
		t.Errorf("expected 3 batches, got %d", llm.calls)
	}
	if res.Pending != 45 || res.Categorized != 45 || res.FailedBatches != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if store.categories["45"] != "Science" {
		t.Errorf("expected last bookmark categorized, got %q", store.categories["45"])
	}
}

func TestCategorizerSkipsFailedBatch(t *testing.T) {
	store := newMemStore(30)
	llm := &scriptedLLM{category: "Politics", failOn: 1, fenced: true}

	res, err := New(llm, store, Options{BatchSize: 10}, nil, nil, testLogger).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.FailedBatches != 1 || res.Categorized != 20 {
		t.Errorf("unexpected result %+v", res)
	}
	if _, ok := store.categories["1"]; ok {
		t.Error("first batch should have been skipped")
	}
	if store.categories["11"] != "Politics" {
		t.Errorf("expected second batch categorized, got %q", store.categories["11"])
	}
}

func TestCategorizerUnknownCategoryBecomesOther(t *testing.T) {
	store := newMemStore(2)
	llm := &scriptedLLM{category: "Cooking"}

	if _, err := New(llm, store, Options{BatchSize: 20}, nil, nil, testLogger).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.categories["1"] != Fallback || store.categories["2"] != Fallback {
		t.Errorf("expected fallback category, got %v", store.categories)
	}
}

func TestCategorizerRespectsLimit(t *testing.T) {
	store := newMemStore(10)
	llm := &scriptedLLM{category: "Other"}

	res, err := New(llm, store, Options{BatchSize: 20, Limit: 4}, nil, nil, testLogger).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Pending != 4 || len(store.categories) != 4 {
		t.Errorf("expected 4 categorized, got %+v / %d", res, len(store.categories))
	}
}

func TestCategorizerNothingPending(t *testing.T) {
	llm := &scriptedLLM{category: "Other"}
	res, err := New(llm, newMemStore(0), Options{}, nil, nil, testLogger).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Pending != 0 || llm.calls != 0 {
		t.Errorf("expected no LLM calls, got %d", llm.calls)
	}
}

func TestCategorizerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(&scriptedLLM{category: "Other"}, newMemStore(5), Options{}, nil, nil, testLogger).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBatchPrompt(t *testing.T) {
	long := strings.Repeat("é", 400)
	got := BatchPrompt([]storage.Bookmark{
		{Record: types.Record{ID: "7", Text: "hello", AuthorHandle: types.StringPtr("jack")}},
		{Record: types.Record{ID: "8", Text: long}},
	})
	lines := strings.Split(got, "\n\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(lines))
	}
	if lines[0] != "[ID=7] @jack: hello" {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "[ID=8] @unknown: ") {
		t.Errorf("expected unknown author, got %q", lines[1][:20])
	}
	if n := len([]rune(strings.TrimPrefix(lines[1], "[ID=8] @unknown: "))); n != maxTextRunes {
		t.Errorf("expected text truncated to %d runes, got %d", maxTextRunes, n)
	}
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  map[string]string
		err   bool
	}{
		{"plain", `[{"id":"1","category":"Science"}]`, map[string]string{"1": "Science"}, false},
		{"fenced", "```json\n[{\"id\":\"2\",\"category\":\"Politics\"}]\n```", map[string]string{"2": "Politics"}, false},
		{"numeric id", `[{"id":3,"category":"Other"}]`, map[string]string{"3": "Other"}, false},
		{"prose around", `Here you go: [{"id":"4","category":"Tech/AI"}] hope it helps`, map[string]string{"4": "Tech/AI"}, false},
		{"no array", `I cannot help with that`, nil, true},
		{"broken json", `[{"id":"5",]`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReply(tt.reply)
			if tt.err {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("id %s: expected %q, got %q", k, v, got[k])
				}
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize(" tech/ai "); got != "Tech/AI" {
		t.Errorf("expected Tech/AI, got %q", got)
	}
	if got := Normalize("Gardening"); got != Fallback {
		t.Errorf("expected fallback, got %q", got)
	}
}

func TestLLMClientProviders(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		switch r.URL.Path {
		case "/api/generate":
			w.Write([]byte(`{"response":"ollama says hi"}`))
		case "/chat/completions":
			w.Write([]byte(`{"choices":[{"message":{"content":"openai says hi"}}]}`))
		default:
			w.Write([]byte(`custom says hi`))
		}
	}))
	defer srv.Close()

	tests := []struct {
		provider string
		endpoint string
		path     string
		want     string
	}{
		{"ollama", srv.URL, "/api/generate", "ollama says hi"},
		{"openai", srv.URL, "/chat/completions", "openai says hi"},
		{"custom", srv.URL + "/hook", "/hook", "custom says hi"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			c := NewLLMClient(config.AIConfig{Provider: tt.provider, Endpoint: tt.endpoint, Model: "m", APIKey: "k"}, testLogger)
			got, err := c.Generate(context.Background(), "sys", "user")
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
			if gotPath != tt.path {
				t.Errorf("expected path %s, got %s", tt.path, gotPath)
			}
			if gotAuth != "Bearer k" {
				t.Errorf("expected bearer auth, got %q", gotAuth)
			}
			if gotBody["model"] != "m" {
				t.Errorf("expected model in payload, got %v", gotBody)
			}
		})
	}
}

func TestLLMClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewLLMClient(config.AIConfig{Provider: "ollama", Endpoint: srv.URL}, testLogger)
	_, err := c.Generate(context.Background(), "sys", "user")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected 429 error, got %v", err)
	}
}

func TestLLMClientUnknownProvider(t *testing.T) {
	c := NewLLMClient(config.AIConfig{Provider: "claude"}, testLogger)
	if _, err := c.Generate(context.Background(), "s", "p"); err == nil {
		t.Error("expected error for unknown provider")
	}
}
