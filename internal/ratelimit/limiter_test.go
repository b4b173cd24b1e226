package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestConsume_DeniesAtCapacityWithoutDeducting(t *testing.T) {
	l, _ := newTestLimiter()
	ctx := context.Background()
	l.Configure(Rule{Method: "GET", Endpoint: "/reports", Requests: 2, WindowSeconds: 60})

	for i := 0; i < 2; i++ {
		ok, err := l.Consume(ctx, "client-a", "GET", "/reports", 0)
		if err != nil || !ok {
			t.Fatalf("consume %d: ok=%v err=%v", i, ok, err)
		}
	}

	before, _ := l.Check(ctx, "client-a", "GET", "/reports")

	ok, err := l.Consume(ctx, "client-a", "GET", "/reports", 0)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if ok {
		t.Fatal("expected denial once capacity is exhausted")
	}

	// Denial must not deduct: remaining is unchanged.
	after, _ := l.Check(ctx, "client-a", "GET", "/reports")
	if after.Remaining != before.Remaining {
		t.Fatalf("denied consume changed remaining: %d -> %d", before.Remaining, after.Remaining)
	}
}

func TestCheck_UnconfiguredEndpointIsUnlimited(t *testing.T) {
	l, _ := newTestLimiter()
	st, err := l.Check(context.Background(), "client-a", "GET", "/brand-new-route")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !st.Unlimited || st.Remaining != -1 || st.Limit != -1 {
		t.Fatalf("expected unlimited status, got %+v", st)
	}

	// Consume against an unmatched endpoint always admits.
	ok, err := l.Consume(context.Background(), "client-a", "GET", "/brand-new-route", 0)
	if err != nil || !ok {
		t.Fatalf("expected unrestricted admit, ok=%v err=%v", ok, err)
	}
}

func TestConsume_BurstDoesNotWidenAdmission(t *testing.T) {
	l, _ := newTestLimiter()
	ctx := context.Background()
	l.Configure(Rule{Method: "POST", Endpoint: "/imports", Requests: 2, WindowSeconds: 60, Burst: 2})

	for i := 0; i < 2; i++ {
		ok, _ := l.Consume(ctx, "c", "POST", "/imports", 0)
		if !ok {
			t.Fatalf("consume %d: expected admit", i)
		}
	}
	// Burst raises the invariant ceiling, not the admission bound.
	if ok, _ := l.Consume(ctx, "c", "POST", "/imports", 0); ok {
		t.Fatal("expected denial at the steady-state limit")
	}

	// Advertised limit and remaining never include burst.
	st, _ := l.Check(ctx, "c", "POST", "/imports")
	if st.Limit != 2 || st.Remaining != 0 {
		t.Fatalf("expected limit=2 remaining=0, got %+v", st)
	}
}

func TestConsume_WindowExpiresLazily(t *testing.T) {
	l, clk := newTestLimiter()
	ctx := context.Background()
	l.Configure(Rule{Method: "GET", Endpoint: "/e", Requests: 1, WindowSeconds: 60})

	if ok, _ := l.Consume(ctx, "c", "GET", "/e", 0); !ok {
		t.Fatal("first consume should admit")
	}
	if ok, _ := l.Consume(ctx, "c", "GET", "/e", 0); ok {
		t.Fatal("second consume should deny inside the window")
	}

	clk.Advance(61 * time.Second)

	// No sweeper: the reset happens on this access.
	if ok, _ := l.Consume(ctx, "c", "GET", "/e", 0); !ok {
		t.Fatal("consume after window expiry should admit")
	}
}

func TestConsume_CostPerRequest(t *testing.T) {
	l, _ := newTestLimiter()
	ctx := context.Background()
	l.Configure(Rule{Method: "POST", Endpoint: "/bulk", Requests: 10, WindowSeconds: 60, CostPerRequest: 5})

	// Default cost comes from the rule: two requests of cost 5 fill the window.
	for i := 0; i < 2; i++ {
		if ok, _ := l.Consume(ctx, "c", "POST", "/bulk", 0); !ok {
			t.Fatalf("consume %d: expected admit", i)
		}
	}
	if ok, _ := l.Consume(ctx, "c", "POST", "/bulk", 0); ok {
		t.Fatal("expected denial after 2 requests of cost 5")
	}
}

func TestReset_ScopedToEndpoint(t *testing.T) {
	l, _ := newTestLimiter()
	ctx := context.Background()
	l.Configure(Rule{Method: "GET", Endpoint: "/a", Requests: 1, WindowSeconds: 60})
	l.Configure(Rule{Method: "GET", Endpoint: "/b", Requests: 1, WindowSeconds: 60})

	l.Consume(ctx, "c", "GET", "/a", 0)
	l.Consume(ctx, "c", "GET", "/b", 0)

	if err := l.Reset(ctx, "c", "/a"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	// /a is back to full capacity; /b is untouched.
	st, _ := l.Check(ctx, "c", "GET", "/a")
	if st.Remaining != 1 {
		t.Fatalf("expected /a remaining=1 after reset, got %d", st.Remaining)
	}
	st, _ = l.Check(ctx, "c", "GET", "/b")
	if st.Remaining != 0 {
		t.Fatalf("expected /b remaining=0, got %d", st.Remaining)
	}
}

func TestReset_AllEndpointsForClient(t *testing.T) {
	l, _ := newTestLimiter()
	ctx := context.Background()
	l.Configure(Rule{Method: "GET", Endpoint: "/a", Requests: 1, WindowSeconds: 60})
	l.Configure(Rule{Method: "GET", Endpoint: "/b", Requests: 1, WindowSeconds: 60})

	l.Consume(ctx, "c", "GET", "/a", 0)
	l.Consume(ctx, "c", "GET", "/b", 0)
	l.Consume(ctx, "other", "GET", "/a", 0)

	if err := l.Reset(ctx, "c", ""); err != nil {
		t.Fatalf("reset: %v", err)
	}

	for _, ep := range []string{"/a", "/b"} {
		st, _ := l.Check(ctx, "c", "GET", ep)
		if st.Remaining != 1 {
			t.Fatalf("expected %s remaining=1 after reset, got %d", ep, st.Remaining)
		}
	}
	// Other clients keep their consumption.
	st, _ := l.Check(ctx, "other", "GET", "/a")
	if st.Remaining != 0 {
		t.Fatalf("expected other client unaffected, got remaining=%d", st.Remaining)
	}
}

func TestConsume_ConcurrentSameKeyNoLostUpdates(t *testing.T) {
	l, _ := newTestLimiter()
	ctx := context.Background()
	l.Configure(Rule{Method: "GET", Endpoint: "/hot", Requests: 50, WindowSeconds: 60})

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Consume(ctx, "c", "GET", "/hot", 0); ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 50 {
		t.Fatalf("expected exactly 50 admissions under contention, got %d", admitted)
	}
}

func TestScenario_CapacityTwoBurstTwo(t *testing.T) {
	// Rule {capacity: 2, window: 60, burst: 2, cost: 1}: two consumes
	// succeed, the third returns false.
	l, _ := newTestLimiter()
	ctx := context.Background()
	l.Configure(Rule{Method: "GET", Endpoint: "/E", Requests: 2, WindowSeconds: 60, Burst: 2, CostPerRequest: 1})

	results := make([]bool, 3)
	for i := range results {
		results[i], _ = l.Consume(ctx, "C", "GET", "/E", 0)
	}
	want := []bool{true, true, false}
	for i := range want {
		if results[i] != want[i] {
			t.Fatalf("consume %d: got %v want %v (all: %v)", i, results[i], want[i], results)
		}
	}
}
