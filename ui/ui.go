// Package ui defines the review screen the bridge drives and the update
// messages that mutate it.
//
// The screen is owned by the UI loop. Other goroutines never hold its widgets
// directly; they post [Update] values through a [Poster], and the UI loop
// applies them in order.
package ui

import "fmt"

// Visibility of a widget.
type Visibility int

const (
	Visible Visibility = iota
	Invisible
	Gone
)

func (v Visibility) String() string {
	switch v {
	case Visible:
		return "visible"
	case Invisible:
		return "invisible"
	case Gone:
		return "gone"
	default:
		return fmt.Sprintf("visibility(%d)", int(v))
	}
}

// VisibleIf maps a flag to Visible or Gone.
func VisibleIf(visible bool) Visibility {
	if visible {
		return Visible
	}
	return Gone
}

type View interface {
	SetVisibility(v Visibility)
}

type Label interface {
	View
	SetText(text string)
}

type Button interface {
	View
	SetText(text string)
}

// WebView shows an HTML document.
type WebView interface {
	View
	LoadDataWithBaseURL(baseURL, data, mimeType, encoding, historyURL string)
}

// NumGrades is the number of grade buttons, numbered 0 to NumGrades-1.
const NumGrades = 6

// Activity is the review screen.
type Activity interface {
	QuestionLabel() Label
	Question() WebView
	AnswerLabel() Label
	Answer() WebView
	ShowAnswerButton() Button
	// GradeButton returns the button for grade 0..5.
	GradeButton(grade int) Button
	StatusBar() Label
}

// Poster is the handle of the UI loop. Post runs fn on the UI loop after
// everything posted before it, and reports false if the loop is gone.
type Poster interface {
	Post(fn func()) bool
}

// PosterFunc adapts a function to a Poster.
type PosterFunc func(fn func()) bool

func (f PosterFunc) Post(fn func()) bool {
	return f(fn)
}
