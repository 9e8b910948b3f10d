// Package tui is a terminal review screen built on bubbletea.
//
// The bubbletea event loop is the UI loop: closures posted through the
// screen are delivered as messages and run inside Update, so widgets are
// only ever touched from there.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/caffeineduck/mnemobridge/ui"
)

// Controller receives the review actions typed on the screen.
type Controller interface {
	ShowAnswer() bool
	Grade(grade int) bool
}

// postedMsg carries closures drained from the post queue, in post order.
type postedMsg []func()

type Screen struct {
	mu     sync.Mutex
	queue  []func()
	notify chan struct{}
	closed chan struct{}
	once   sync.Once

	controller func() Controller
	log        zerolog.Logger

	questionLabel widget
	question      widget
	answerLabel   widget
	answer        widget
	showAnswer    widget
	statusBar     widget
	grades        [ui.NumGrades]widget

	// inUpdate is set while posted closures run inside Update.
	inUpdate atomic.Bool
	offLoop  atomic.Int64
}

var _ ui.Activity = (*Screen)(nil)
var _ ui.Poster = (*Screen)(nil)

// Option configures a Screen.
type Option func(*Screen)

// WithLogger sets the logger used for panics recovered from posted closures.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Screen) {
		s.log = log
	}
}

// New returns a screen. controller is consulted on every key press and may
// return nil while the worker is not ready.
func New(controller func() Controller, opts ...Option) *Screen {
	s := &Screen{
		notify:     make(chan struct{}, 1),
		closed:     make(chan struct{}),
		controller: controller,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.questionLabel.s = s
	s.question.s = s
	s.answerLabel.s = s
	s.answer.s = s
	s.showAnswer.s = s
	s.statusBar.s = s
	for i := range s.grades {
		s.grades[i].s = s
	}
	return s
}

// Post queues fn for the event loop. It reports false after Close.
func (s *Screen) Post(fn func()) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true
}

// Close rejects further posts and releases the pending wait command.
func (s *Screen) Close() {
	s.once.Do(func() { close(s.closed) })
}

// wait blocks until closures are queued and returns them as one message.
func (s *Screen) wait() tea.Msg {
	for {
		s.mu.Lock()
		fns := s.queue
		s.queue = nil
		s.mu.Unlock()
		if len(fns) > 0 {
			return postedMsg(fns)
		}
		select {
		case <-s.notify:
		case <-s.closed:
			return nil
		}
	}
}

func (s *Screen) QuestionLabel() ui.Label     { return &s.questionLabel }
func (s *Screen) Question() ui.WebView        { return &s.question }
func (s *Screen) AnswerLabel() ui.Label       { return &s.answerLabel }
func (s *Screen) Answer() ui.WebView          { return &s.answer }
func (s *Screen) ShowAnswerButton() ui.Button { return &s.showAnswer }
func (s *Screen) StatusBar() ui.Label         { return &s.statusBar }

func (s *Screen) GradeButton(grade int) ui.Button {
	if grade < 0 || grade >= ui.NumGrades {
		return nil
	}
	return &s.grades[grade]
}

// Init starts listening for posted closures.
func (s *Screen) Init() tea.Cmd {
	return s.wait
}

func (s *Screen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case postedMsg:
		for _, fn := range msg {
			s.runTask(fn)
		}
		return s, s.wait
	case tea.KeyMsg:
		return s, s.key(msg)
	}
	return s, nil
}

// runTask runs one posted closure. A panic ends that closure only; the rest
// of the batch and the program keep going.
func (s *Screen) runTask(fn func()) {
	s.inUpdate.Store(true)
	defer func() {
		s.inUpdate.Store(false)
		if r := recover(); r != nil {
			s.log.Error().
				Str("looper", "ui").
				Err(fmt.Errorf("%v", r)).
				Msg("task panicked")
		}
	}()
	fn()
}

func (s *Screen) key(msg tea.KeyMsg) tea.Cmd {
	switch k := msg.String(); k {
	case "q", "ctrl+c", "esc":
		s.Close()
		return tea.Quit
	case " ", "enter":
		if s.showAnswer.visibility != ui.Visible {
			return nil
		}
		if c := s.ctrl(); c != nil {
			c.ShowAnswer()
		}
	default:
		if len(k) != 1 || k[0] < '0' || k[0] >= '0'+ui.NumGrades {
			return nil
		}
		grade := int(k[0] - '0')
		if s.grades[grade].visibility != ui.Visible {
			return nil
		}
		if c := s.ctrl(); c != nil {
			c.Grade(grade)
		}
	}
	return nil
}

func (s *Screen) ctrl() Controller {
	if s.controller == nil {
		return nil
	}
	return s.controller()
}

var (
	labelStyle  = lipgloss.NewStyle().Bold(true)
	docStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	buttonStyle = lipgloss.NewStyle().Reverse(true).Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Faint(true)
)

// View renders visible widgets top to bottom. HTML is shown as source.
func (s *Screen) View() string {
	var b strings.Builder
	if s.questionLabel.visibility == ui.Visible {
		b.WriteString(labelStyle.Render(s.questionLabel.text) + "\n")
	}
	if s.question.visibility == ui.Visible {
		b.WriteString(docStyle.Render(s.question.data) + "\n")
	}
	if s.answerLabel.visibility == ui.Visible {
		b.WriteString(labelStyle.Render(s.answerLabel.text) + "\n")
	}
	if s.answer.visibility == ui.Visible {
		b.WriteString(docStyle.Render(s.answer.data) + "\n")
	}
	if s.showAnswer.visibility == ui.Visible {
		b.WriteString(buttonStyle.Render(s.showAnswer.text+" [space]") + "\n")
	}
	var grades []string
	for i, g := range s.grades {
		if g.visibility == ui.Visible {
			grades = append(grades, buttonStyle.Render(fmt.Sprint(i)))
		}
	}
	if len(grades) > 0 {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, grades...) + "\n")
	}
	if s.statusBar.visibility == ui.Visible && s.statusBar.text != "" {
		b.WriteString(statusStyle.Render(s.statusBar.text) + "\n")
	}
	return b.String()
}

// Run drives the screen until the user quits or ctx is done.
func Run(ctx context.Context, s *Screen, opts ...tea.ProgramOption) error {
	defer s.Close()
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	_, err := tea.NewProgram(s, opts...).Run()
	return err
}

type widget struct {
	s          *Screen
	text       string
	visibility ui.Visibility
	data       string
}

func (w *widget) touch() {
	if !w.s.inUpdate.Load() {
		w.s.offLoop.Add(1)
	}
}

func (w *widget) SetText(text string) {
	w.touch()
	w.text = text
}

func (w *widget) SetVisibility(v ui.Visibility) {
	w.touch()
	w.visibility = v
}

func (w *widget) LoadDataWithBaseURL(_, data, _, _, _ string) {
	w.touch()
	w.data = data
}
