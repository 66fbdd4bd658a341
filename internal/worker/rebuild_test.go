package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sprintboard/internal/config"
)

type fakeRebuilder struct {
	mu         sync.Mutex
	rebuilt    []string
	failFor    string
	countByKey map[string]int64
}

func (f *fakeRebuilder) RebuildBoard(_ context.Context, country string, times map[int64]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if country == f.failFor && country != "" {
		return errors.New("rebuild failed")
	}
	f.rebuilt = append(f.rebuilt, country)
	return nil
}

func (f *fakeRebuilder) Count(_ context.Context, country string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countByKey[country], nil
}

func (f *fakeRebuilder) rebuiltBoards() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.rebuilt...)
}

type fakeResultSource struct {
	countries []string
	times     map[string]map[int64]float64
	total     int64
}

func (f *fakeResultSource) Countries(context.Context) ([]string, error) {
	return f.countries, nil
}

func (f *fakeResultSource) AllTimesByCountry(_ context.Context, country string) (map[int64]float64, error) {
	return f.times[country], nil
}

func (f *fakeResultSource) ResultCount(context.Context) (int64, error) {
	return f.total, nil
}

func newTestWorker(ranks RankRebuilder, results ResultSource, interval time.Duration) *RebuildWorker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRebuildWorker(ranks, results, &config.RebuildConfig{Interval: interval, Enabled: true}, logger)
}

func TestRebuildAll(t *testing.T) {
	ranks := &fakeRebuilder{}
	results := &fakeResultSource{
		countries: []string{"DE", "US"},
		times: map[string]map[int64]float64{
			"DE": {1: 11.1},
			"US": {2: 12.34},
			"":   {1: 11.1, 2: 12.34},
		},
		total: 2,
	}
	w := newTestWorker(ranks, results, time.Hour)

	if err := w.RebuildAll(context.Background()); err != nil {
		t.Fatalf("RebuildAll() error = %v", err)
	}

	// Every country set plus the global set (empty country) gets rebuilt.
	want := []string{"DE", "US", ""}
	got := ranks.rebuiltBoards()
	if len(got) != len(want) {
		t.Fatalf("rebuilt %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rebuilt[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRebuildAllContinuesPastFailure(t *testing.T) {
	ranks := &fakeRebuilder{failFor: "DE"}
	results := &fakeResultSource{
		countries: []string{"DE", "US"},
		times: map[string]map[int64]float64{
			"DE": {1: 11.1},
			"US": {2: 12.34},
			"":   {1: 11.1, 2: 12.34},
		},
	}
	w := newTestWorker(ranks, results, time.Hour)

	if err := w.RebuildAll(context.Background()); err != nil {
		t.Fatalf("RebuildAll() error = %v", err)
	}

	// One failing country must not stop the remaining rebuilds.
	got := ranks.rebuiltBoards()
	if len(got) != 2 || got[0] != "US" || got[1] != "" {
		t.Errorf("rebuilt %v, want US and global despite DE failure", got)
	}
}

func TestRebuildSkipsEmptyCountry(t *testing.T) {
	ranks := &fakeRebuilder{}
	results := &fakeResultSource{
		countries: []string{"US"},
		times:     map[string]map[int64]float64{},
	}
	w := newTestWorker(ranks, results, time.Hour)

	if err := w.RebuildAll(context.Background()); err != nil {
		t.Fatalf("RebuildAll() error = %v", err)
	}
	if got := ranks.rebuiltBoards(); len(got) != 0 {
		t.Errorf("rebuilt %v, want nothing for empty result sets", got)
	}
}

func TestStartStop(t *testing.T) {
	ranks := &fakeRebuilder{}
	results := &fakeResultSource{
		countries: []string{"US"},
		times:     map[string]map[int64]float64{"US": {1: 12.34}},
	}
	w := newTestWorker(ranks, results, 10*time.Millisecond)

	if w.IsRunning() {
		t.Fatal("worker running before Start")
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !w.IsRunning() {
		t.Fatal("worker not running after Start")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(ranks.rebuiltBoards()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(ranks.rebuiltBoards()) == 0 {
		t.Fatal("ticker never triggered a rebuild")
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if w.IsRunning() {
		t.Error("worker still running after Stop")
	}
}
