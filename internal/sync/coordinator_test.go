package sync

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCoordinator_CollapsesConcurrentCalls(t *testing.T) {
	coord := NewCoordinator(0)

	started := make(chan struct{})
	release := make(chan struct{})
	var runs int

	fn := func() (*Result, error) {
		runs++
		close(started)
		<-release
		return &Result{WorkspaceID: "ws-1", Pulled: 7}, nil
	}

	var wg sync.WaitGroup
	results := make(chan *Result, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := coord.Do("ws-1", fn)
		if err != nil {
			t.Errorf("first do: %v", err)
		}
		results <- r
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := coord.Do("ws-1", fn)
		if err != nil {
			t.Errorf("second do: %v", err)
		}
		results <- r
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	if runs != 1 {
		t.Fatalf("fn ran %d times, want 1", runs)
	}
	var shared int
	for r := range results {
		if r.Pulled != 7 {
			t.Errorf("result pulled: got %d, want 7", r.Pulled)
		}
		if r.Shared {
			shared++
		}
	}
	if shared != 1 {
		t.Errorf("shared results: got %d, want 1", shared)
	}
}

func TestCoordinator_WorkspacesDoNotBlockEachOther(t *testing.T) {
	coord := NewCoordinator(0)

	release := make(chan struct{})
	started := make(chan struct{})
	go coord.Do("ws-1", func() (*Result, error) {
		close(started)
		<-release
		return &Result{WorkspaceID: "ws-1"}, nil
	})
	<-started

	done := make(chan struct{})
	go func() {
		coord.Do("ws-2", func() (*Result, error) {
			return &Result{WorkspaceID: "ws-2"}, nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ws-2 sync blocked behind ws-1")
	}
	close(release)
}

func TestCoordinator_ThrottleReturnsPreviousResult(t *testing.T) {
	coord := NewCoordinator(time.Minute)

	var runs int
	fn := func() (*Result, error) {
		runs++
		return &Result{WorkspaceID: "ws-1", Pushed: runs}, nil
	}

	first, err := coord.Do("ws-1", fn)
	if err != nil {
		t.Fatalf("first do: %v", err)
	}
	if first.Throttled {
		t.Error("first call must not be throttled")
	}

	second, err := coord.Do("ws-1", fn)
	if err != nil {
		t.Fatalf("second do: %v", err)
	}
	if !second.Throttled {
		t.Error("call inside the throttle window should be throttled")
	}
	if second.Pushed != first.Pushed {
		t.Errorf("throttled result differs: got %d, want %d", second.Pushed, first.Pushed)
	}
	if runs != 1 {
		t.Errorf("fn ran %d times, want 1", runs)
	}
}

func TestCoordinator_ThrottleReplaysError(t *testing.T) {
	coord := NewCoordinator(time.Minute)
	boom := errors.New("remote down")

	if _, err := coord.Do("ws-1", func() (*Result, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("first do: got %v, want %v", err, boom)
	}
	if _, err := coord.Do("ws-1", func() (*Result, error) { return &Result{}, nil }); !errors.Is(err, boom) {
		t.Errorf("throttled call should replay the previous error, got %v", err)
	}
}

func TestCoordinator_NewRunAfterWindow(t *testing.T) {
	coord := NewCoordinator(10 * time.Millisecond)

	var runs int
	fn := func() (*Result, error) {
		runs++
		return &Result{WorkspaceID: "ws-1"}, nil
	}
	coord.Do("ws-1", fn)
	time.Sleep(20 * time.Millisecond)
	r, err := coord.Do("ws-1", fn)
	if err != nil {
		t.Fatalf("do after window: %v", err)
	}
	if r.Throttled {
		t.Error("call outside the window must not be throttled")
	}
	if runs != 2 {
		t.Errorf("fn ran %d times, want 2", runs)
	}
}
