package main

import (
	"strings"
	"testing"

	"github.com/IshaanNene/markbook/internal/storage"
	"github.com/IshaanNene/markbook/internal/types"
)

func TestRenderBookmark(t *testing.T) {
	tests := []struct {
		name string
		b    storage.Bookmark
		want []string
		not  []string
	}{
		{
			name: "full",
			b: storage.Bookmark{
				Record: types.Record{
					ID:           "20",
					URL:          "https://x.com/jack/status/20",
					Text:         "just setting up my twttr",
					AuthorName:   types.StringPtr("jack"),
					AuthorHandle: types.StringPtr("jack"),
					CreatedAt:    types.StringPtr("2006-03-21T20:50:14.000Z"),
					MediaURLs:    []string{"https://pbs.twimg.com/media/a.jpg"},
					LikeCount:    1200,
				},
				Category: types.StringPtr("Humor"),
			},
			want: []string{"jack (@jack)", "2006-03-21", "[Humor]", "just setting up my twttr", "1 media", "1200", "https://x.com/jack/status/20"},
		},
		{
			name: "no author",
			b: storage.Bookmark{Record: types.Record{
				ID:  "1",
				URL: "https://x.com/i/status/1",
			}},
			want: []string{"Unknown", "https://x.com/i/status/1"},
			not:  []string{"media", "Humor"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := renderBookmark(tt.b)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("expected %q in:\n%s", w, out)
				}
			}
			for _, n := range tt.not {
				if strings.Contains(out, n) {
					t.Errorf("unexpected %q in:\n%s", n, out)
				}
			}
		})
	}
}
