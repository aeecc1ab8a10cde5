package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cointrade/exchange"
	"cointrade/models"
)

type fakeDriver struct {
	exchange.Base
	mu      sync.Mutex
	queries []models.OrderQuery
	results [][]models.Trade
	errs    []error
}

func (f *fakeDriver) FetchMyTrades(_ context.Context, _ string, _ models.ApiKeys, q models.OrderQuery) ([]models.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.queries)
	f.queries = append(f.queries, q)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return nil, nil
}

type recordingSink struct {
	batches [][]models.Trade
}

func (s *recordingSink) PublishTrades(_ context.Context, exchange string, trades []models.Trade) error {
	s.batches = append(s.batches, trades)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestPollAdvancesOnSuccessOnly(t *testing.T) {
	c := &clock{t: time.UnixMilli(1000)}
	d := &fakeDriver{
		Base:    exchange.Base{Exchange: "demo"},
		results: [][]models.Trade{{{ID: "t1"}}, nil, nil, {{ID: "t2"}, {ID: "t3"}}},
		errs:    []error{nil, nil, &models.NetworkRequestError{Exchange: "demo", Retryable: true}},
	}
	sink := &recordingSink{}
	w := New(d, Config{Symbol: "BTC/USDT", Limit: 25, Now: c.now}, sink)

	if w.LastChecked() != 1000 {
		t.Fatalf("initial bound %d", w.LastChecked())
	}

	c.t = time.UnixMilli(2000)
	if got, err := w.Poll(context.Background()); err != nil || len(got) != 1 {
		t.Fatalf("poll 1: %v %v", got, err)
	}
	c.t = time.UnixMilli(3000)
	w.Poll(context.Background())
	c.t = time.UnixMilli(4000)
	if _, err := w.Poll(context.Background()); !errors.Is(err, models.ErrNetwork) {
		t.Fatalf("poll 3: %v", err)
	}
	if w.LastChecked() != 3000 {
		t.Fatalf("failed poll moved bound to %d", w.LastChecked())
	}
	c.t = time.UnixMilli(5000)
	w.Poll(context.Background())

	wantSince := []int64{1000, 2000, 3000, 3000}
	for i, q := range d.queries {
		if q.Since != wantSince[i] || q.Limit != 25 || q.Symbol != "BTC/USDT" {
			t.Errorf("query %d: %+v", i, q)
		}
	}
	if len(sink.batches) != 2 || len(sink.batches[1]) != 2 {
		t.Fatalf("sink batches %v", sink.batches)
	}
	if w.LastChecked() != 5000 {
		t.Errorf("bound %d", w.LastChecked())
	}
}

func TestStartStop(t *testing.T) {
	d := &fakeDriver{Base: exchange.Base{Exchange: "demo"}}
	w := New(d, Config{Interval: time.Millisecond})
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("second start should fail")
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		d.mu.Lock()
		n := len(d.queries)
		d.mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	w.Stop()
	w.Stop()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queries) < 2 {
		t.Fatalf("expected polling, got %d queries", len(d.queries))
	}
}
