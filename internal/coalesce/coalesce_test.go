package coalesce

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestDo_ConcurrentCallersShareOneProduction(t *testing.T) {
	var g Group[int]
	var calls atomic.Int32

	started := make(chan struct{})
	release := make(chan struct{})

	// First caller enters the producer and blocks, keeping the flight open.
	var first sync.WaitGroup
	first.Add(1)
	go func() {
		defer first.Done()
		g.Do("k", func() (int, error) {
			calls.Add(1)
			close(started)
			<-release
			return 42, nil
		})
	}()
	<-started

	// Nine more callers join while the flight is open.
	const joiners = 9
	results := make([]int, joiners)
	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := g.Do("k", func() (int, error) {
				calls.Add(1)
				return -1, nil
			})
			if err != nil {
				t.Errorf("joiner %d: unexpected error: %v", i, err)
			}
			results[i] = v
		}(i)
	}

	close(release)
	first.Wait()
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("producer ran %d times, want 1", got)
	}
	for i, v := range results {
		if v != 42 {
			t.Errorf("joiner %d got %d, want the shared result 42", i, v)
		}
	}
}

func TestDo_ErrorSharedAndFlightForgotten(t *testing.T) {
	var g Group[string]
	boom := errors.New("upstream down")

	if _, err := g.Do("k", func() (string, error) {
		return "", boom
	}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	// The failed flight must not be remembered: a fresh call runs fresh.
	v, err := g.Do("k", func() (string, error) {
		return "recovered", nil
	})
	if err != nil || v != "recovered" {
		t.Errorf("Do after failure = (%q, %v), want (%q, nil)", v, err, "recovered")
	}
}

func TestDo_DistinctKeysDoNotCoalesce(t *testing.T) {
	var g Group[int]

	a, _ := g.Do("a", func() (int, error) { return 1, nil })
	b, _ := g.Do("b", func() (int, error) { return 2, nil })
	if a != 1 || b != 2 {
		t.Errorf("got (%d, %d), want (1, 2)", a, b)
	}
}
