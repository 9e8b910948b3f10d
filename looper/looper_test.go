package looper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func startLooper(t *testing.T, opts ...Option) *Looper {
	t.Helper()
	l := New(t.Name(), opts...)
	go l.Loop(context.Background())
	t.Cleanup(l.Quit)
	return l
}

// flush blocks until every task posted before it has run.
func flush(t *testing.T, l *Looper) {
	t.Helper()
	done := make(chan struct{})
	if !l.Post(func() { close(done) }) {
		t.Fatal("post refused")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("looper did not drain")
	}
}

func TestLooperRunsInFIFOOrder(t *testing.T) {
	l := startLooper(t)

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	flush(t, l)

	if len(got) != 100 {
		t.Fatalf("expected 100 tasks, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestLooperPostBeforeLoopIsQueued(t *testing.T) {
	l := New("early")
	ran := make(chan struct{})
	if !l.Post(func() { close(ran) }) {
		t.Fatal("post before loop should be accepted")
	}
	if l.Pending() != 1 {
		t.Errorf("expected 1 pending task, got %d", l.Pending())
	}

	go l.Loop(context.Background())
	defer l.Quit()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("queued task never ran")
	}
}

func TestLooperNeverRunsTasksConcurrently(t *testing.T) {
	l := startLooper(t)

	var (
		active  int
		maxSeen int
		mu      sync.Mutex
		wg      sync.WaitGroup
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Post(func() {
					mu.Lock()
					active++
					if active > maxSeen {
						maxSeen = active
					}
					mu.Unlock()
					time.Sleep(10 * time.Microsecond)
					mu.Lock()
					active--
					mu.Unlock()
				})
			}
		}()
	}
	wg.Wait()
	flush(t, l)

	if maxSeen != 1 {
		t.Errorf("expected at most one task at a time, saw %d", maxSeen)
	}
	if l.Served() < 400 {
		t.Errorf("expected at least 400 served tasks, got %d", l.Served())
	}
}

func TestLooperRecoversPanickingTask(t *testing.T) {
	l := startLooper(t)

	l.Post(func() { panic("bad widget") })
	after := false
	l.Post(func() { after = true })
	flush(t, l)

	if !after {
		t.Error("task after panic did not run")
	}
}

func TestLooperQuitRefusesPosts(t *testing.T) {
	l := New("quit")
	errCh := make(chan error, 1)
	go func() { errCh <- l.Loop(context.Background()) }()

	flush(t, l)
	l.Quit()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected nil error after quit, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not return after quit")
	}

	if l.Post(func() {}) {
		t.Error("post after quit should be refused")
	}
	select {
	case <-l.Done():
	default:
		t.Error("done channel should be closed")
	}
	if err := l.Loop(context.Background()); !errors.Is(err, ErrQuit) {
		t.Errorf("expected ErrQuit, got %v", err)
	}
}

func TestLooperContextCancel(t *testing.T) {
	l := New("cancel")
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Loop(ctx) }()

	flush(t, l)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not return after cancel")
	}
}

func TestLooperRejectsSecondLoop(t *testing.T) {
	l := startLooper(t)
	flush(t, l)

	if err := l.Loop(context.Background()); !errors.Is(err, ErrRunning) {
		t.Errorf("expected ErrRunning, got %v", err)
	}
}

func TestLooperOnLoop(t *testing.T) {
	l := startLooper(t, WithLockOSThread())

	if l.OnLoop() {
		t.Error("test goroutine should not be on the loop")
	}

	var inside bool
	l.Post(func() { inside = l.OnLoop() })
	flush(t, l)
	if !inside {
		t.Error("task should observe OnLoop() == true")
	}
}

func TestLooperRefusesNilTask(t *testing.T) {
	l := New("test")
	if l.Post(nil) {
		t.Error("nil task should be refused")
	}
	if n := l.Pending(); n != 0 {
		t.Errorf("Pending() = %d, want 0", n)
	}
}
