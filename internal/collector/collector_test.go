package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/markbook/internal/extract"
	"github.com/IshaanNene/markbook/internal/progress"
	"github.com/IshaanNene/markbook/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// post renders one container; text lets tests tell observations apart.
type post struct {
	id   string
	text string
}

// scriptedView replays one snapshot per cycle and repeats the last one
// once the script runs out.
type scriptedView struct {
	snapshots [][]post
	cycle     int
	lists     int
	scrolls   int
	listErr   error
	scrollErr error
}

func (v *scriptedView) Containers(ctx context.Context) ([]*goquery.Selection, error) {
	if v.listErr != nil {
		return nil, v.listErr
	}
	v.lists++
	i := v.cycle
	if i >= len(v.snapshots) {
		i = len(v.snapshots) - 1
	}
	if i < 0 {
		return nil, nil
	}

	var b strings.Builder
	for _, p := range v.snapshots[i] {
		fmt.Fprintf(&b, `<article><a href="/u/status/%s">link</a><div data-testid="tweetText">%s</div></article>`, p.id, p.text)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(b.String()))
	if err != nil {
		return nil, err
	}
	var out []*goquery.Selection
	doc.Find("article").Each(func(_ int, s *goquery.Selection) {
		out = append(out, s)
	})
	return out, nil
}

func (v *scriptedView) ScrollBy(ctx context.Context, viewports float64) error {
	if v.scrollErr != nil {
		return v.scrollErr
	}
	v.scrolls++
	v.cycle++
	return nil
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func ids(recs []types.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func newTestCollector(view View, threshold int, opts ...Option) *Collector {
	o := DefaultOptions()
	o.StallThreshold = threshold
	opts = append([]Option{WithSleep(noSleep)}, opts...)
	return New(view, extract.New("https://x.com", testLogger), o, testLogger, opts...)
}

func TestRunEvictionScenario(t *testing.T) {
	view := &scriptedView{snapshots: [][]post{
		{{"A", "a"}, {"B", "b"}, {"C", "c"}},
		{{"B", "b"}, {"C", "c"}, {"D", "d"}},
	}}

	var events []types.Event
	c := newTestCollector(view, 5, WithReporter(progress.Func(func(ev types.Event) {
		events = append(events, ev)
	})))

	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	got := strings.Join(ids(res.Records), ",")
	if got != "A,B,C,D" {
		t.Errorf("expected A,B,C,D, got %s", got)
	}
	// Two productive cycles followed by exactly five stalls.
	if res.Cycles != 7 {
		t.Errorf("expected 7 cycles, got %d", res.Cycles)
	}
	if view.scrolls != res.Cycles {
		t.Errorf("expected one scroll per cycle, got %d scrolls for %d cycles", view.scrolls, res.Cycles)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 progress events, got %d: %v", len(events), events)
	}
	if events[0].Text != "Found 3 bookmarks so far..." || events[1].Text != "Found 4 bookmarks so far..." {
		t.Errorf("unexpected progress texts: %v", events)
	}
	for _, ev := range events {
		if ev.IsTerminal() {
			t.Errorf("collector must not emit terminal events, got %v", ev)
		}
	}
}

func TestRunFirstObservationWins(t *testing.T) {
	view := &scriptedView{snapshots: [][]post{
		{{"A", "first"}},
		{{"A", "edited"}, {"B", "b"}},
		{{"B", "changed"}, {"A", "again"}},
	}}

	res, err := newTestCollector(view, 2).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %v", ids(res.Records))
	}
	if res.Records[0].Text != "first" {
		t.Errorf("record A was overwritten: %q", res.Records[0].Text)
	}
	if res.Records[1].Text != "b" {
		t.Errorf("record B was overwritten: %q", res.Records[1].Text)
	}
}

func TestRunConvergesWithinThreshold(t *testing.T) {
	for _, threshold := range []int{1, 3, 5} {
		t.Run(fmt.Sprintf("threshold=%d", threshold), func(t *testing.T) {
			// Novel items on cycles 1, 2 and 4; cycle 3 is a transient stall.
			view := &scriptedView{snapshots: [][]post{
				{{"1", ""}},
				{{"1", ""}, {"2", ""}},
				{{"2", ""}},
				{{"2", ""}, {"3", ""}},
			}}
			res, err := newTestCollector(view, threshold).Run(context.Background())
			if err != nil {
				t.Fatalf("run: %v", err)
			}

			lastNovel := 4
			if threshold == 1 {
				// A single stall is enough to stop at cycle 3.
				lastNovel = 2
			}
			if res.Cycles != lastNovel+threshold {
				t.Errorf("expected %d cycles, got %d", lastNovel+threshold, res.Cycles)
			}
		})
	}
}

func TestRunMonotonicCount(t *testing.T) {
	view := &scriptedView{snapshots: [][]post{
		{{"1", ""}, {"2", ""}},
		{},
		{{"3", ""}},
		{{"1", ""}},
		{{"4", ""}, {"5", ""}, {"2", ""}},
	}}

	var counts []int
	reporter := progress.Func(func(ev types.Event) {
		var n int
		fmt.Sscanf(ev.Text, "Found %d bookmarks", &n)
		counts = append(counts, n)
	})

	res, err := newTestCollector(view, 2, WithReporter(reporter)).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i := 1; i < len(counts); i++ {
		if counts[i] < counts[i-1] {
			t.Fatalf("count decreased: %v", counts)
		}
	}
	if len(res.Records) != 5 {
		t.Errorf("expected 5 records, got %v", ids(res.Records))
	}
}

func TestRunSkipsUnparseableContainers(t *testing.T) {
	view := &scriptedView{snapshots: [][]post{
		{{"", "no id"}, {"A", "a"}},
	}}
	res, err := newTestCollector(view, 1).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := strings.Join(ids(res.Records), ","); got != "A" {
		t.Errorf("expected only A, got %s", got)
	}
}

func TestRunEmptyView(t *testing.T) {
	view := &scriptedView{snapshots: [][]post{{}}}
	res, err := newTestCollector(view, 5).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("expected no records, got %d", len(res.Records))
	}
	if res.Cycles != 5 {
		t.Errorf("expected 5 cycles, got %d", res.Cycles)
	}
}

func TestRunScrollFailureIsFatal(t *testing.T) {
	boom := errors.New("target closed")
	view := &scriptedView{
		snapshots: [][]post{{{"A", ""}}},
		scrollErr: boom,
	}
	_, err := newTestCollector(view, 5).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected scroll error, got %v", err)
	}
	var se *types.SessionError
	if !errors.As(err, &se) || se.Op != "scroll" || se.Cycle != 1 {
		t.Errorf("expected scroll SessionError at cycle 1, got %#v", err)
	}
}

func TestRunListFailureIsFatal(t *testing.T) {
	boom := errors.New("page crashed")
	view := &scriptedView{listErr: boom}
	_, err := newTestCollector(view, 5).Run(context.Background())
	var se *types.SessionError
	if !errors.As(err, &se) || se.Op != "list" {
		t.Fatalf("expected list SessionError, got %v", err)
	}
}

func TestRunPauseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	view := &scriptedView{snapshots: [][]post{{{"A", ""}}}}
	_, err := newTestCollector(view, 5).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunMaxCycles(t *testing.T) {
	// A source that injects a new item on every cycle never stalls.
	snaps := make([][]post, 50)
	for i := range snaps {
		snaps[i] = []post{{fmt.Sprint(i), ""}}
	}
	view := &scriptedView{snapshots: snaps}

	o := DefaultOptions()
	o.MaxCycles = 10
	c := New(view, extract.New("https://x.com", testLogger), o, testLogger, WithSleep(noSleep))
	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Capped || res.Cycles != 10 || len(res.Records) != 10 {
		t.Errorf("expected capped run of 10 cycles/records, got %+v", res)
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// --- Accumulator ---

func TestAccumulator(t *testing.T) {
	a := NewAccumulator(4)

	if !a.Add(types.Record{ID: "1", Text: "one"}) {
		t.Error("first add should be novel")
	}
	if a.Add(types.Record{ID: "1", Text: "uno"}) {
		t.Error("second add of same id should not be novel")
	}
	if a.Add(types.Record{}) {
		t.Error("record without id must be rejected")
	}
	if !a.Has("1") || a.Len() != 1 {
		t.Errorf("unexpected state: has=%v len=%d", a.Has("1"), a.Len())
	}
	if rec, _ := a.Get("1"); rec.Text != "one" {
		t.Errorf("expected first-seen text, got %q", rec.Text)
	}

	recs := a.Records()
	recs[0].Text = "mutated"
	if rec, _ := a.Get("1"); rec.Text != "one" {
		t.Error("Records must return a copy")
	}
}
