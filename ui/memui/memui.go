// Package memui is an in-memory review screen with its own UI loop.
//
// It backs the tests and headless runs of the bridge: widgets keep their
// state in plain fields, and every mutation records whether it ran on the UI
// loop.
package memui

import (
	"context"
	"sync/atomic"

	"github.com/caffeineduck/mnemobridge/looper"
	"github.com/caffeineduck/mnemobridge/ui"
)

// Widget is the observable state of one widget.
type Widget struct {
	Text       string
	Visibility ui.Visibility

	// Last LoadDataWithBaseURL call, for web views.
	BaseURL    string
	Data       string
	MimeType   string
	Encoding   string
	HistoryURL string

	Mutations int
}

// State is a copy of the whole screen.
type State struct {
	QuestionLabel Widget
	Question      Widget
	AnswerLabel   Widget
	Answer        Widget
	ShowAnswer    Widget
	StatusBar     Widget
	Grades        [ui.NumGrades]Widget

	// OffLoop counts widget mutations that did not run on the UI loop.
	OffLoop int64
}

type Screen struct {
	loop *looper.Looper

	questionLabel *widget
	question      *widget
	answerLabel   *widget
	answer        *widget
	showAnswer    *widget
	statusBar     *widget
	grades        [ui.NumGrades]*widget

	offLoop atomic.Int64
}

var _ ui.Activity = (*Screen)(nil)
var _ ui.Poster = (*Screen)(nil)

// New returns a screen whose UI loop is not yet running; call Start or Run.
func New(opts ...looper.Option) *Screen {
	opts = append([]looper.Option{looper.WithLockOSThread()}, opts...)
	s := &Screen{loop: looper.New("ui", opts...)}
	s.questionLabel = s.newWidget()
	s.question = s.newWidget()
	s.answerLabel = s.newWidget()
	s.answer = s.newWidget()
	s.showAnswer = s.newWidget()
	s.statusBar = s.newWidget()
	for i := range s.grades {
		s.grades[i] = s.newWidget()
	}
	return s
}

func (s *Screen) newWidget() *widget {
	return &widget{s: s}
}

// Run drives the UI loop on the calling goroutine.
func (s *Screen) Run(ctx context.Context) error {
	return s.loop.Loop(ctx)
}

// Start runs the UI loop on a new goroutine.
func (s *Screen) Start() {
	go s.loop.Loop(context.Background())
}

// Quit stops the UI loop.
func (s *Screen) Quit() {
	s.loop.Quit()
}

// Looper returns the UI loop.
func (s *Screen) Looper() *looper.Looper {
	return s.loop
}

// Post runs fn on the UI loop.
func (s *Screen) Post(fn func()) bool {
	return s.loop.Post(fn)
}

func (s *Screen) QuestionLabel() ui.Label     { return s.questionLabel }
func (s *Screen) Question() ui.WebView        { return s.question }
func (s *Screen) AnswerLabel() ui.Label       { return s.answerLabel }
func (s *Screen) Answer() ui.WebView          { return s.answer }
func (s *Screen) ShowAnswerButton() ui.Button { return s.showAnswer }
func (s *Screen) StatusBar() ui.Label         { return s.statusBar }

func (s *Screen) GradeButton(grade int) ui.Button {
	if grade < 0 || grade >= ui.NumGrades {
		return nil
	}
	return s.grades[grade]
}

// Snapshot copies the screen state on the UI loop, after every update posted
// before the call has been applied.
func (s *Screen) Snapshot(ctx context.Context) (State, error) {
	ch := make(chan State, 1)
	if !s.loop.Post(func() { ch <- s.state() }) {
		return State{}, looper.ErrQuit
	}
	select {
	case st := <-ch:
		return st, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// Observe runs fn with the current state on the UI loop.
func (s *Screen) Observe(fn func(State)) bool {
	return s.loop.Post(func() { fn(s.state()) })
}

func (s *Screen) state() State {
	st := State{
		QuestionLabel: s.questionLabel.w,
		Question:      s.question.w,
		AnswerLabel:   s.answerLabel.w,
		Answer:        s.answer.w,
		ShowAnswer:    s.showAnswer.w,
		StatusBar:     s.statusBar.w,
		OffLoop:       s.offLoop.Load(),
	}
	for i, g := range s.grades {
		st.Grades[i] = g.w
	}
	return st
}

type widget struct {
	s *Screen
	w Widget
}

func (w *widget) touch() {
	if !w.s.loop.OnLoop() {
		w.s.offLoop.Add(1)
	}
	w.w.Mutations++
}

func (w *widget) SetText(text string) {
	w.touch()
	w.w.Text = text
}

func (w *widget) SetVisibility(v ui.Visibility) {
	w.touch()
	w.w.Visibility = v
}

func (w *widget) LoadDataWithBaseURL(baseURL, data, mimeType, encoding, historyURL string) {
	w.touch()
	w.w.BaseURL = baseURL
	w.w.Data = data
	w.w.MimeType = mimeType
	w.w.Encoding = encoding
	w.w.HistoryURL = historyURL
}
