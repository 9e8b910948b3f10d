// Package worker runs the embedded review application on a dedicated
// background loop.
//
// Run starts the runtime on a goroutine locked to its OS thread, then serves
// posted tasks on that same thread. The posting handle only becomes
// available once startup has finished, so nothing can reach a half-built
// runtime.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/caffeineduck/mnemobridge/bridge"
	"github.com/caffeineduck/mnemobridge/host"
	"github.com/caffeineduck/mnemobridge/internal/logging"
	"github.com/caffeineduck/mnemobridge/looper"
	"github.com/caffeineduck/mnemobridge/ui"
	"github.com/rs/zerolog"
)

// ErrUnavailable is returned by WaitReady when startup failed.
var ErrUnavailable = errors.New("bridge unavailable")

// Review controller methods the screen triggers.
const (
	ShowAnswerMethod  = "show_answer"
	GradeAnswerMethod = "grade_answer"
)

const attachBridge = "bridge"

type Config struct {
	Start host.StartConfig

	// Logger replaces Start.Logger.
	Logger zerolog.Logger
}

// Task runs on the worker loop with the runtime handles. The handles fail
// with host.ErrWrongThread if they escape the task to another thread.
type Task func(ctx context.Context, h *host.Handles)

type Worker struct {
	cfg      Config
	activity ui.Activity
	poster   ui.Poster
	log      zerolog.Logger

	loop    *looper.Looper
	started atomic.Bool

	ready    chan struct{}
	handler  atomic.Pointer[Handler]
	startErr error

	ctx     context.Context
	handles *host.Handles
	bridge  *bridge.Bridge
}

// New creates a worker for the screen. activity is only touched through
// closures posted to poster.
func New(cfg Config, activity ui.Activity, poster ui.Poster) *Worker {
	if cfg.Start.Service == (host.ServiceKey{}) {
		cfg.Start.Service = host.DefaultServiceKey
	}
	if cfg.Start.Factory == nil {
		cfg.Start.Factory = host.Default()
	}
	cfg.Start.Logger = cfg.Logger
	log := logging.Component(cfg.Logger, "worker")
	return &Worker{
		cfg:      cfg,
		activity: activity,
		poster:   poster,
		log:      log,
		loop:     looper.New("worker", looper.WithLockOSThread(), looper.WithLogger(log)),
		ready:    make(chan struct{}),
	}
}

// Run starts the runtime and serves tasks until Quit or ctx is done. If
// startup fails, Run returns the error and the worker never becomes ready.
func (w *Worker) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return looper.ErrRunning
	}

	// Startup and every task share one OS thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	h, err := w.start(ctx)
	if err != nil {
		w.startErr = err
		close(w.ready)
		w.loop.Quit()
		return err
	}

	w.ctx = ctx
	w.handles = h.Guard(w.loop.OnLoop)
	w.handler.Store(&Handler{w: w})
	close(w.ready)

	w.log.Debug().Msg("worker ready")
	return w.loop.Loop(ctx)
}

// start brings up the runtime, reusing the bridge of an earlier worker when
// the service already exists.
func (w *Worker) start(ctx context.Context) (*host.Handles, error) {
	cfg := w.cfg.Start
	var b *bridge.Bridge
	if svc := cfg.Factory.Service(cfg.Service); svc != nil {
		b, _ = svc.Attachment(attachBridge).(*bridge.Bridge)
	}
	if b != nil {
		b.Rebind(w.activity, w.poster)
	} else {
		b = bridge.New(w.activity, w.poster, bridge.WithLogger(logging.Component(w.cfg.Logger, "bridge")))
	}

	h, reused, err := host.Start(ctx, cfg, bridge.Registry(b))
	if err != nil {
		w.log.Error().Err(err).Msg("startup failed")
		return nil, err
	}
	if !reused {
		h.Service.Attach(attachBridge, b)
	}
	w.bridge = b
	return h, nil
}

// Handler returns the posting handle, or false while the worker is not
// ready.
func (w *Worker) Handler() (*Handler, bool) {
	h := w.handler.Load()
	return h, h != nil
}

// WaitReady blocks until the handle is published or startup failed.
func (w *Worker) WaitReady(ctx context.Context) (*Handler, error) {
	select {
	case <-w.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if h := w.handler.Load(); h != nil {
		return h, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, w.startErr)
}

// Bridge returns the callback surface bound to this worker's screen, or nil
// before Run has started the runtime.
func (w *Worker) Bridge() *bridge.Bridge {
	select {
	case <-w.ready:
		return w.bridge
	default:
		return nil
	}
}

// OnLoop reports whether the caller runs on the worker loop.
func (w *Worker) OnLoop() bool {
	return w.loop.OnLoop()
}

// Quit stops the loop. The runtime itself lives until the process exits.
func (w *Worker) Quit() {
	w.loop.Quit()
}

// Done is closed when the loop has stopped.
func (w *Worker) Done() <-chan struct{} {
	return w.loop.Done()
}

// Handler posts tasks to a ready worker from any goroutine.
type Handler struct {
	w *Worker
}

// Post enqueues t. It reports false once the worker has quit.
func (h *Handler) Post(t Task) bool {
	if h == nil || t == nil {
		return false
	}
	w := h.w
	return w.loop.Post(func() { t(w.ctx, w.handles) })
}

// ShowAnswer asks the review controller to reveal the answer.
func (h *Handler) ShowAnswer() bool {
	return h.call(ShowAnswerMethod)
}

// Grade submits grade for the current card.
func (h *Handler) Grade(grade int) bool {
	return h.call(GradeAnswerMethod, grade)
}

func (h *Handler) call(method string, args ...any) bool {
	return h.Post(func(ctx context.Context, hs *host.Handles) {
		if _, err := hs.ReviewController.Call(ctx, method, args...); err != nil {
			h.w.log.Error().Err(err).Str("method", method).Msg("review controller call failed")
		}
	})
}

// Exec runs code in the interpreter and hands the result to reply, which
// runs on the worker loop.
func (h *Handler) Exec(code string, reply func(out string, err error)) bool {
	return h.Post(func(ctx context.Context, hs *host.Handles) {
		out, err := hs.Interpreter.Exec(ctx, code)
		if reply != nil {
			reply(out, err)
		}
	})
}
