package python

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/caffeineduck/mnemobridge/host"
	"github.com/caffeineduck/mnemobridge/hostfunc"
	"github.com/rs/zerolog"
)

// Frames the prelude writes to stderr, each terminated by a NUL:
//
//	\x00CLE_READY\x00          interpreter is waiting for commands
//	\x00CLE_DONE:{json}\x00    command finished
//	\x00CLE_ERROR:{json}\x00   command raised
//	\x00CLE:{json}\x00         call into a bound host object
//
// DONE and ERROR payloads echo the "seq" of the command they complete.
const (
	readySignal = "\x00CLE_READY\x00"
	donePrefix  = "\x00CLE_DONE:"
	errorPrefix = "\x00CLE_ERROR:"
	callPrefix  = "\x00CLE:"
	terminator  = '\x00'
)

type frameKind int

const (
	frameText frameKind = iota
	frameReady
	frameDone
	frameError
	frameCall
)

var frames = []struct {
	prefix string
	kind   frameKind
}{
	{readySignal, frameReady},
	{donePrefix, frameDone},
	{errorPrefix, frameError},
	{callPrefix, frameCall},
}

// nextFrame splits the first frame off s. ok is false when s is empty or
// ends inside a frame that needs more data.
func nextFrame(s string) (kind frameKind, payload, rest string, ok bool) {
	if s == "" {
		return frameText, "", "", false
	}
	i := strings.IndexByte(s, terminator)
	if i < 0 {
		return frameText, s, "", true
	}
	if i > 0 {
		return frameText, s[:i], s[i:], true
	}

	for _, f := range frames {
		if strings.HasPrefix(s, f.prefix) {
			body := s[len(f.prefix):]
			if f.kind == frameReady {
				return frameReady, "", body, true
			}
			end := strings.IndexByte(body, terminator)
			if end < 0 {
				return frameText, "", s, false
			}
			return f.kind, body[:end], body[end+1:], true
		}
		if strings.HasPrefix(f.prefix, s) {
			return frameText, "", s, false
		}
	}
	// A NUL that starts no frame is ordinary output.
	return frameText, s[:1], s[1:], true
}

type callRequest struct {
	Obj  string         `json:"obj"`
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args"`
}

type callResponse struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// reply is the payload of a DONE frame.
type reply struct {
	Handle *int64 `json:"handle"`
	Value  any    `json:"value"`
}

// guestError is the payload of an ERROR frame.
type guestError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *guestError) Error() string {
	return strings.TrimSpace(e.Message)
}

func (e *guestError) Unwrap() error {
	if e.Kind == "missing" {
		return host.ErrEntrySymbolMissing
	}
	return nil
}

type result struct {
	reply reply
	err   error
}

// completion is the part of DONE and ERROR payloads common to both.
type completion struct {
	Seq uint64 `json:"seq"`
}

// protocol sits on the guest's stderr. Plain output is kept for the caller,
// frames complete commands or dispatch host calls.
type protocol struct {
	ctx   context.Context
	stdin io.Writer
	log   zerolog.Logger

	mu      sync.Mutex
	buf     bytes.Buffer
	stderr  bytes.Buffer
	objects map[string]*hostfunc.Registry
	ready   bool
	seq     uint64

	readyCh chan struct{}
	doneCh  chan result

	writeMu sync.Mutex
}

func newProtocol(ctx context.Context, stdin io.Writer, log zerolog.Logger) *protocol {
	return &protocol{
		ctx:     ctx,
		stdin:   stdin,
		log:     log,
		objects: make(map[string]*hostfunc.Registry),
		readyCh: make(chan struct{}),
		doneCh:  make(chan result, 1),
	}
}

func (p *protocol) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)
	for {
		kind, payload, rest, ok := nextFrame(p.buf.String())
		if !ok {
			break
		}
		p.buf.Reset()
		p.buf.WriteString(rest)

		switch kind {
		case frameText:
			p.stderr.WriteString(payload)
		case frameReady:
			if !p.ready {
				p.ready = true
				close(p.readyCh)
			}
		case frameDone:
			var r reply
			if err := json.Unmarshal([]byte(payload), &r); err != nil {
				p.deliver(result{err: fmt.Errorf("bad reply: %w", err)})
				continue
			}
			if p.stale(payload) {
				continue
			}
			p.deliver(result{reply: r})
		case frameError:
			ge := &guestError{}
			if err := json.Unmarshal([]byte(payload), ge); err != nil {
				p.deliver(result{err: &guestError{Kind: "protocol", Message: payload}})
				continue
			}
			if p.stale(payload) {
				continue
			}
			p.deliver(result{err: ge})
		case frameCall:
			p.handleCall(payload)
		}
	}
	return len(data), nil
}

// handleCall runs the host function in the writer's goroutine so calls
// happen in the order the guest made them. Only the response is written
// asynchronously, since the guest reads it after this Write returns.
func (p *protocol) handleCall(payload string) {
	var req callRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		go p.respond(callResponse{Error: "invalid call format"})
		return
	}
	resp := p.executeCall(req)
	go p.respond(resp)
}

func (p *protocol) executeCall(req callRequest) callResponse {
	r, ok := p.objects[req.Obj]
	if !ok {
		return callResponse{Error: "unknown object: " + req.Obj}
	}
	data, err := r.Call(p.ctx, req.Fn, req.Args)
	if err != nil {
		p.log.Warn().Err(err).Str("obj", req.Obj).Str("fn", req.Fn).Msg("host call failed")
		return callResponse{Error: err.Error()}
	}
	return callResponse{Data: data}
}

func (p *protocol) respond(resp callResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		data = []byte(`{"error":"internal: failed to marshal response"}`)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.stdin.Write(append(data, '\n'))
}

// stale reports whether a completion belongs to an earlier command, one the
// caller stopped waiting for.
func (p *protocol) stale(payload string) bool {
	var c completion
	json.Unmarshal([]byte(payload), &c)
	if c.Seq == p.seq {
		return false
	}
	p.log.Debug().Uint64("seq", c.Seq).Uint64("want", p.seq).Msg("dropping stale completion")
	return true
}

func (p *protocol) deliver(r result) {
	select {
	case p.doneCh <- r:
	default:
		p.log.Warn().Msg("dropping unexpected completion")
	}
}

func (p *protocol) bind(name string, r *hostfunc.Registry) {
	p.mu.Lock()
	p.objects[name] = r
	p.mu.Unlock()
}

// resetExec clears state left by the previous command and makes seq the only
// command whose completion is delivered.
func (p *protocol) resetExec(seq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq = seq

	select {
	case <-p.doneCh:
	default:
	}
	p.stderr.Reset()
}

func (p *protocol) Ready() <-chan struct{} {
	return p.readyCh
}

func (p *protocol) Done() <-chan result {
	return p.doneCh
}

func (p *protocol) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stderr.String()
}
