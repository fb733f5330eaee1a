package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/a1betting/prop-engine/internal/cache"
)

type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestDo_CallsExactlyMaxRetriesThenExhausts(t *testing.T) {
	sleeper := &recordingSleeper{}
	p := Policy{MaxRetries: 3, BaseDelay: 10 * time.Second, Sleep: sleeper.Sleep}
	boom := errors.New("upstream 503")

	calls := 0
	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})

	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
	var exhausted *RetryExhausted
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want *RetryExhausted", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exhausted.Attempts)
	}
	if !errors.Is(err, boom) {
		t.Error("RetryExhausted should unwrap to the last error")
	}

	want := []time.Duration{10 * time.Second, 20 * time.Second}
	if len(sleeper.delays) != len(want) {
		t.Fatalf("slept %v, want %v", sleeper.delays, want)
	}
	for i := range want {
		if sleeper.delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, sleeper.delays[i], want[i])
		}
	}
}

func TestDo_ReturnsFirstSuccess(t *testing.T) {
	p := Policy{MaxRetries: 5, Sleep: (&recordingSleeper{}).Sleep}
	calls := 0
	v, err := Do(context.Background(), p, func(ctx context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("Do() = %q, %v; want ok, nil", v, err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	forbidden := errors.New("403 forbidden")
	calls := 0
	_, err := Do(context.Background(), Policy{MaxRetries: 3, Sleep: (&recordingSleeper{}).Sleep}, func(ctx context.Context) (int, error) {
		calls++
		return 0, Permanent(forbidden)
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if err != forbidden {
		t.Errorf("err = %v, want the unwrapped permanent error", err)
	}
}

func TestDo_HonorsHintedDelay(t *testing.T) {
	sleeper := &recordingSleeper{}
	p := Policy{MaxRetries: 2, BaseDelay: time.Second, Sleep: sleeper.Sleep}
	calls := 0
	_, _ = Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		return 0, After(42*time.Second, errors.New("429"))
	})
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(sleeper.delays) != 1 || sleeper.delays[0] != 42*time.Second {
		t.Errorf("delays = %v, want [42s]", sleeper.delays)
	}
}

func TestDo_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, Policy{MaxRetries: 5, BaseDelay: time.Millisecond}, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCached_WritesThroughOnSuccess(t *testing.T) {
	w := NewCached(cache.NewTTL[string](10, time.Minute), Policy{MaxRetries: 1})
	calls := 0
	op := func(ctx context.Context) (string, error) {
		calls++
		return "leagues", nil
	}

	for i := 0; i < 3; i++ {
		v, err := w.Call(context.Background(), "fetchLeagues", op, "page=1")
		if err != nil || v != "leagues" {
			t.Fatalf("Call() = %q, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1 (cached)", calls)
	}

	if _, err := w.Call(context.Background(), "fetchLeagues", op, "page=2"); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("different args should miss the cache; calls = %d", calls)
	}
}

func TestCached_DoesNotCacheFailures(t *testing.T) {
	w := NewCached(cache.NewTTL[int](10, time.Minute), Policy{MaxRetries: 2, Sleep: (&recordingSleeper{}).Sleep})
	calls := 0
	op := func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("down")
	}
	_, _ = w.Call(context.Background(), "op", op)
	_, _ = w.Call(context.Background(), "op", op)
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	if w.Len() != 0 {
		t.Errorf("Len() = %d, want 0", w.Len())
	}
}
