package router

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/salesfeed/internal/model"
)

func testSale(source, txType, txKey string) model.Sale {
	return model.Sale{
		Tx: model.Transaction{
			Source: source,
			TxType: txType,
			TxKey:  txKey,
		},
	}
}

// recorder collects listener invocations in order.
type recorder struct {
	mu     sync.Mutex
	events []string
	done   chan struct{}
	want   int
}

func newRecorder(want int) *recorder {
	return &recorder{done: make(chan struct{}), want: want}
}

func (rec *recorder) listener(name string) Listener {
	return func(_ context.Context, ev Event) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.events = append(rec.events, name)
		if len(rec.events) == rec.want {
			close(rec.done)
		}
	}
}

func (rec *recorder) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-rec.done:
	case <-time.After(time.Second):
		rec.mu.Lock()
		defer rec.mu.Unlock()
		t.Fatalf("timeout: got %d deliveries %v, want %d", len(rec.events), rec.events, rec.want)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]string(nil), rec.events...)
}

func startRouter(t *testing.T) Router {
	t.Helper()
	r := NewRouter(DefaultRouterConfig(), nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		r.Stop(ctx)
	})
	return r
}

func TestDefaultRouterConfig(t *testing.T) {
	cfg := DefaultRouterConfig()
	if cfg.QueueSize != 1000 {
		t.Errorf("QueueSize = %d, want 1000", cfg.QueueSize)
	}
}

func TestPatterns(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"exact", Exact("TENSORSWAP", "SALE_BUY_NOW"), "TENSORSWAP:SALE_BUY_NOW"},
		{"source any", SourceAny("TENSORSWAP"), "TENSORSWAP:*"},
		{"type any", TypeAny("SALE_BUY_NOW"), "*:SALE_BUY_NOW"},
		{"bare", Bare("SALE_BUY_NOW"), "SALE_BUY_NOW"},
		{"global", AnyTransaction, "*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("pattern = %q, want %q", tt.got, tt.want)
			}
		})
	}

	got := Patterns(model.Transaction{Source: "S", TxType: "T"})
	want := []string{"*", "S:T", "S:*", "*:T", "T"}
	if len(got) != len(want) {
		t.Fatalf("Patterns len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Patterns[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRouter_StartStop(t *testing.T) {
	r := NewRouter(DefaultRouterConfig(), nil)

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := r.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestRouter_FanOutOrder(t *testing.T) {
	r := startRouter(t)
	rec := newRecorder(3)

	// Registered out of firing order on purpose.
	r.On(Bare("SALE_BUY_NOW"), rec.listener("bare"))
	r.On(SourceAny("marketplaceY"), rec.listener("other-source"))
	r.On(Exact("marketplaceX", "SALE_BUY_NOW"), rec.listener("exact"))
	r.On(AnyTransaction, rec.listener("global"))

	n := r.Dispatch("alpha", testSale("marketplaceX", "SALE_BUY_NOW", "k1"))
	if n != 3 {
		t.Errorf("Dispatch = %d, want 3", n)
	}

	got := rec.wait(t)
	want := []string{"global", "exact", "bare"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery %d = %q, want %q (all: %v)", i, got[i], want[i], got)
		}
	}

	// Give a stray delivery time to show up.
	time.Sleep(20 * time.Millisecond)
	rec.mu.Lock()
	if len(rec.events) != 3 {
		t.Errorf("deliveries = %v, want exactly 3", rec.events)
	}
	rec.mu.Unlock()
}

func TestRouter_AllFivePatterns(t *testing.T) {
	r := startRouter(t)
	rec := newRecorder(5)

	r.On(TypeAny("LIST"), rec.listener("type-any"))
	r.On(Bare("LIST"), rec.listener("bare"))
	r.On(SourceAny("S"), rec.listener("source-any"))
	r.On(Exact("S", "LIST"), rec.listener("exact"))
	r.On(AnyTransaction, rec.listener("global"))

	r.Dispatch("alpha", testSale("S", "LIST", "k1"))

	got := rec.wait(t)
	want := []string{"global", "exact", "source-any", "type-any", "bare"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRouter_RegistrationOrder(t *testing.T) {
	r := startRouter(t)
	rec := newRecorder(3)

	r.On(AnyTransaction, rec.listener("first"))
	r.On(AnyTransaction, rec.listener("second"))
	r.On(AnyTransaction, rec.listener("third"))

	r.Dispatch("alpha", testSale("S", "T", "k1"))

	got := rec.wait(t)
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRouter_EventCarriesTopicAndPattern(t *testing.T) {
	r := startRouter(t)

	got := make(chan Event, 1)
	r.On(Exact("S", "T"), func(_ context.Context, ev Event) { got <- ev })

	r.Dispatch("alpha", testSale("S", "T", "k1"))

	select {
	case ev := <-got:
		if ev.Topic != "alpha" {
			t.Errorf("Topic = %q, want alpha", ev.Topic)
		}
		if ev.Pattern != "S:T" {
			t.Errorf("Pattern = %q, want S:T", ev.Pattern)
		}
		if ev.Sale.Tx.TxKey != "k1" {
			t.Errorf("TxKey = %q, want k1", ev.Sale.Tx.TxKey)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for delivery")
	}
}

func TestRouter_HasListenersAndCancel(t *testing.T) {
	r := NewRouter(DefaultRouterConfig(), nil)

	if r.HasListeners(AnyTransaction) {
		t.Error("HasListeners = true before registration")
	}

	cancel1 := r.On(AnyTransaction, func(context.Context, Event) {})
	cancel2 := r.On(AnyTransaction, func(context.Context, Event) {})

	if !r.HasListeners(AnyTransaction) {
		t.Error("HasListeners = false after registration")
	}
	if got := r.Stats().Listeners; got != 2 {
		t.Errorf("Listeners = %d, want 2", got)
	}

	cancel1()
	cancel1() // no-op
	if !r.HasListeners(AnyTransaction) {
		t.Error("HasListeners = false with one listener left")
	}

	cancel2()
	if r.HasListeners(AnyTransaction) {
		t.Error("HasListeners = true after all listeners cancelled")
	}
}

func TestRouter_UnmatchedNotQueued(t *testing.T) {
	r := NewRouter(DefaultRouterConfig(), nil)
	r.On(SourceAny("marketplaceY"), func(context.Context, Event) {
		t.Error("listener for another source fired")
	})

	if n := r.Dispatch("alpha", testSale("marketplaceX", "SALE_BUY_NOW", "k1")); n != 0 {
		t.Errorf("Dispatch = %d, want 0", n)
	}

	stats := r.Stats()
	if stats.Unmatched != 1 {
		t.Errorf("Unmatched = %d, want 1", stats.Unmatched)
	}
	if stats.Queue.Count != 0 {
		t.Errorf("Queue.Count = %d, want 0", stats.Queue.Count)
	}
}

func TestRouter_DispatchDoesNotBlockOnListener(t *testing.T) {
	r := startRouter(t)

	release := make(chan struct{})
	r.On(AnyTransaction, func(context.Context, Event) { <-release })
	defer close(release)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			r.Dispatch("alpha", testSale("S", "T", "k"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a slow listener")
	}

	if got := r.Stats().EventsReceived; got != 100 {
		t.Errorf("EventsReceived = %d, want 100", got)
	}
}

func TestRouter_ListenerPanicRecovered(t *testing.T) {
	r := startRouter(t)
	rec := newRecorder(1)

	r.On(AnyTransaction, func(context.Context, Event) { panic("boom") })
	r.On(AnyTransaction, rec.listener("after"))

	r.Dispatch("alpha", testSale("S", "T", "k1"))
	rec.wait(t)

	stats := r.Stats()
	if stats.ListenerPanics != 1 {
		t.Errorf("ListenerPanics = %d, want 1", stats.ListenerPanics)
	}
	if stats.Deliveries != 1 {
		t.Errorf("Deliveries = %d, want 1", stats.Deliveries)
	}
}

func TestRouter_StopDeliversQueued(t *testing.T) {
	r := NewRouter(DefaultRouterConfig(), nil)

	var mu sync.Mutex
	count := 0
	r.On(AnyTransaction, func(context.Context, Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	// Queued before Start
	for i := 0; i < 10; i++ {
		r.Dispatch("alpha", testSale("S", "T", "k"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Start(ctx)
	r.Stop(ctx)

	mu.Lock()
	defer mu.Unlock()
	if count != 10 {
		t.Errorf("delivered %d, want 10", count)
	}

	if n := r.Dispatch("alpha", testSale("S", "T", "k")); n != 0 {
		t.Errorf("Dispatch after Stop = %d, want 0", n)
	}
}

func TestRouter_QueueGrowth(t *testing.T) {
	r := NewRouter(RouterConfig{QueueSize: 4}, nil)
	r.On(AnyTransaction, func(context.Context, Event) {})

	// Not started: everything stays queued.
	for i := 0; i < 50; i++ {
		r.Dispatch("alpha", testSale("S", "T", "k"))
	}

	stats := r.Stats()
	if stats.Queue.Count != 50 {
		t.Errorf("Queue.Count = %d, want 50", stats.Queue.Count)
	}
	if stats.Queue.HighWater != 50 {
		t.Errorf("Queue.HighWater = %d, want 50", stats.Queue.HighWater)
	}
}

func TestRouter_DeliveryOrderAcrossDispatches(t *testing.T) {
	r := NewRouter(RouterConfig{QueueSize: 2}, nil)

	var mu sync.Mutex
	var got []string
	r.On(AnyTransaction, func(_ context.Context, ev Event) {
		mu.Lock()
		got = append(got, ev.Topic+"/"+ev.Sale.Tx.TxKey)
		mu.Unlock()
	})

	var want []string
	for i := 0; i < 200; i++ {
		topic := []string{"alpha", "beta"}[i%2]
		key := "k" + strconv.Itoa(i)
		r.Dispatch(topic, testSale("S", "T", key))
		want = append(want, topic+"/"+key)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Start(ctx)
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("delivered %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivery %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRouter_DispatchAfterStopCountsDropped(t *testing.T) {
	r := startRouter(t)
	r.On(AnyTransaction, func(context.Context, Event) {})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if n := r.Dispatch("alpha", testSale("S", "T", "k1")); n != 0 {
		t.Errorf("Dispatch after Stop = %d, want 0", n)
	}
	stats := r.Stats()
	if stats.Queue.Dropped != 1 {
		t.Errorf("Queue.Dropped = %d, want 1", stats.Queue.Dropped)
	}
	if stats.Queue.Pushed != 0 {
		t.Errorf("Queue.Pushed = %d, want 0", stats.Queue.Pushed)
	}
}

func TestRouter_StartContextCancelDoesNotCancelListeners(t *testing.T) {
	r := NewRouter(DefaultRouterConfig(), nil)

	release := make(chan struct{})
	errs := make(chan error, 2)
	r.On(AnyTransaction, func(ctx context.Context, _ Event) {
		<-release
		errs <- ctx.Err()
	})

	startCtx, cancelStart := context.WithCancel(context.Background())
	if err := r.Start(startCtx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.Dispatch("alpha", testSale("S", "T", "k1"))
	r.Dispatch("alpha", testSale("S", "T", "k2"))
	cancelStart()
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Errorf("listener %d saw ctx.Err() = %v, want nil", i, err)
		}
	}
}
