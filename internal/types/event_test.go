package types

import (
	"encoding/json"
	"testing"
)

func TestEventJSON(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"progress", Progress("Found %d bookmarks so far...", 3), `{"kind":"progress","text":"Found 3 bookmarks so far..."}`},
		{"done", Done(42), `{"kind":"done","count":42}`},
		{"done with nothing collected", Done(0), `{"kind":"done","count":0}`},
		{"error", Failed("server returned 500: db unavailable"), `{"kind":"error","text":"server returned 500: db unavailable"}`},
		{"empty progress", Progress(""), `{"kind":"progress","text":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.ev)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("got %s, want %s", data, tt.want)
			}

			var back Event
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if back != tt.ev {
				t.Errorf("round trip: got %+v, want %+v", back, tt.ev)
			}
		})
	}
}

func TestEventJSONPointer(t *testing.T) {
	ev := Done(0)
	data, err := json.Marshal(&ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"kind":"done","count":0}` {
		t.Errorf("unexpected encoding %s", data)
	}
}
