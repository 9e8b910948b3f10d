// Package bridge implements the callback surface the embedded review logic
// uses to drive the review screen.
//
// Every operation captures its arguments into a [ui.Update] and posts it to
// the UI loop. None of them blocks or returns a value, and the order of calls
// is the order in which the screen changes.
package bridge

import (
	"context"
	"sync/atomic"

	"github.com/caffeineduck/mnemobridge/hostfunc"
	"github.com/caffeineduck/mnemobridge/ui"
	"github.com/rs/zerolog"
)

// Callbacks is the fixed capability set handed to the embedded runtime.
type Callbacks interface {
	SetQuestionLabel(text string)
	SetQuestion(html string)
	SetAnswer(html string)
	SetQuestionBoxVisible(isVisible bool)
	SetAnswerBoxVisible(isVisible bool)
	UpdateShowButton(text string, isDefault, isEnabled bool)
	SetGradesEnabled(isEnabled bool)
	SetStatusbarText(text string)
}

// Names of the operations as the embedded runtime sees them.
const (
	OpSetQuestionLabel      = "setQuestionLabel"
	OpSetQuestion           = "setQuestion"
	OpSetAnswer             = "setAnswer"
	OpSetQuestionBoxVisible = "setQuestionBoxVisible"
	OpSetAnswerBoxVisible   = "setAnswerBoxVisible"
	OpUpdateShowButton      = "updateShowButton"
	OpSetGradesEnabled      = "setGradesEnabled"
	OpSetStatusbarText      = "setStatusbarText"
)

type target struct {
	activity ui.Activity
	poster   ui.Poster
}

// Bridge posts screen updates to the UI loop. It holds the activity only to
// hand it to closures that run on that loop.
type Bridge struct {
	target  atomic.Pointer[target]
	log     zerolog.Logger
	dropped atomic.Uint64
}

var _ Callbacks = (*Bridge)(nil)

type Option func(*Bridge)

func WithLogger(log zerolog.Logger) Option {
	return func(b *Bridge) {
		b.log = log
	}
}

func New(activity ui.Activity, poster ui.Poster, opts ...Option) *Bridge {
	b := &Bridge{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	b.Rebind(activity, poster)
	return b
}

// Rebind points the bridge at another screen. Updates already posted still
// go to the old one.
func (b *Bridge) Rebind(activity ui.Activity, poster ui.Poster) {
	b.target.Store(&target{activity: activity, poster: poster})
}

// Dropped counts updates refused because the UI loop was gone.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Bridge) post(u ui.Update) {
	t := b.target.Load()
	if t == nil || t.poster == nil || !ui.Post(t.poster, t.activity, u) {
		b.dropped.Add(1)
		b.log.Warn().Type("update", u).Msg("UI loop unavailable, update dropped")
	}
}

func (b *Bridge) SetQuestionLabel(text string) {
	b.post(ui.SetLabel{Target: ui.QuestionLabelTarget, Text: text})
}

func (b *Bridge) SetQuestion(html string) {
	b.post(ui.LoadHTML{Target: ui.QuestionView, HTML: html})
}

func (b *Bridge) SetAnswer(html string) {
	b.post(ui.LoadHTML{Target: ui.AnswerView, HTML: html})
}

// SetQuestionBoxVisible shows or hides the question view and its label.
func (b *Bridge) SetQuestionBoxVisible(isVisible bool) {
	b.post(ui.SetGroupVisible{Group: ui.QuestionGroup, Visible: isVisible})
}

// SetAnswerBoxVisible shows or hides the answer view and its label.
func (b *Bridge) SetAnswerBoxVisible(isVisible bool) {
	b.post(ui.SetGroupVisible{Group: ui.AnswerGroup, Visible: isVisible})
}

// UpdateShowButton sets the show-answer label and shows the button only when
// enabled. isDefault is accepted and passed along unused.
func (b *Bridge) UpdateShowButton(text string, isDefault, isEnabled bool) {
	b.post(ui.ShowButton{Text: text, IsDefault: isDefault, IsEnabled: isEnabled})
}

// SetGradesEnabled shows or hides all six grade buttons.
func (b *Bridge) SetGradesEnabled(isEnabled bool) {
	b.post(ui.SetGroupVisible{Group: ui.GradeGroup, Visible: isEnabled})
}

func (b *Bridge) SetStatusbarText(text string) {
	b.post(ui.SetLabel{Target: ui.StatusBarTarget, Text: text})
}

// Registry exposes c to an embedded runtime under the operation names.
func Registry(c Callbacks) *hostfunc.Registry {
	r := hostfunc.NewRegistry()

	text := func(fn func(string)) hostfunc.Func {
		return func(ctx context.Context, args map[string]any) (any, error) {
			s, err := hostfunc.String(args, "text")
			if err != nil {
				return nil, err
			}
			fn(s)
			return nil, nil
		}
	}
	html := func(fn func(string)) hostfunc.Func {
		return func(ctx context.Context, args map[string]any) (any, error) {
			s, err := hostfunc.String(args, "html")
			if err != nil {
				return nil, err
			}
			fn(s)
			return nil, nil
		}
	}
	flag := func(name string, fn func(bool)) hostfunc.Func {
		return func(ctx context.Context, args map[string]any) (any, error) {
			v, err := hostfunc.Bool(args, name)
			if err != nil {
				return nil, err
			}
			fn(v)
			return nil, nil
		}
	}

	r.Register(OpSetQuestionLabel, text(c.SetQuestionLabel), "text")
	r.Register(OpSetQuestion, html(c.SetQuestion), "html")
	r.Register(OpSetAnswer, html(c.SetAnswer), "html")
	r.Register(OpSetQuestionBoxVisible, flag("isVisible", c.SetQuestionBoxVisible), "isVisible")
	r.Register(OpSetAnswerBoxVisible, flag("isVisible", c.SetAnswerBoxVisible), "isVisible")
	r.Register(OpUpdateShowButton, func(ctx context.Context, args map[string]any) (any, error) {
		s, err := hostfunc.String(args, "text")
		if err != nil {
			return nil, err
		}
		isDefault, err := hostfunc.Bool(args, "isDefault")
		if err != nil {
			return nil, err
		}
		isEnabled, err := hostfunc.Bool(args, "isEnabled")
		if err != nil {
			return nil, err
		}
		c.UpdateShowButton(s, isDefault, isEnabled)
		return nil, nil
	}, "text", "isDefault", "isEnabled")
	r.Register(OpSetGradesEnabled, flag("isEnabled", c.SetGradesEnabled), "isEnabled")
	r.Register(OpSetStatusbarText, text(c.SetStatusbarText), "text")

	return r
}
