package ui

import "fmt"

// HTML load parameters used for every question and answer document.
const (
	MimeTypeHTML = "text/html"
	EncodingUTF8 = "utf-8"
)

// Update is one mutation of the review screen. Apply must only be called on
// the UI loop.
type Update interface {
	Apply(a Activity)
}

// Group is a set of widgets that are always shown or hidden together.
type Group int

const (
	QuestionGroup Group = iota
	AnswerGroup
	GradeGroup
)

func (g Group) String() string {
	switch g {
	case QuestionGroup:
		return "question"
	case AnswerGroup:
		return "answer"
	case GradeGroup:
		return "grades"
	default:
		return fmt.Sprintf("group(%d)", int(g))
	}
}

// Views returns the widgets of the group.
func (g Group) Views(a Activity) []View {
	switch g {
	case QuestionGroup:
		return []View{a.Question(), a.QuestionLabel()}
	case AnswerGroup:
		return []View{a.Answer(), a.AnswerLabel()}
	case GradeGroup:
		views := make([]View, 0, NumGrades)
		for i := 0; i < NumGrades; i++ {
			views = append(views, a.GradeButton(i))
		}
		return views
	default:
		return nil
	}
}

// LabelTarget names a text widget.
type LabelTarget int

const (
	QuestionLabelTarget LabelTarget = iota
	AnswerLabelTarget
	StatusBarTarget
)

func (t LabelTarget) label(a Activity) Label {
	switch t {
	case QuestionLabelTarget:
		return a.QuestionLabel()
	case AnswerLabelTarget:
		return a.AnswerLabel()
	case StatusBarTarget:
		return a.StatusBar()
	default:
		return nil
	}
}

// ViewTarget names an HTML widget.
type ViewTarget int

const (
	QuestionView ViewTarget = iota
	AnswerView
)

func (t ViewTarget) view(a Activity) WebView {
	switch t {
	case QuestionView:
		return a.Question()
	case AnswerView:
		return a.Answer()
	default:
		return nil
	}
}

// SetLabel replaces the text of a label.
type SetLabel struct {
	Target LabelTarget
	Text   string
}

func (u SetLabel) Apply(a Activity) {
	if l := u.Target.label(a); l != nil {
		l.SetText(u.Text)
	}
}

// LoadHTML loads a document into a web view with no base URL and no history
// entry.
type LoadHTML struct {
	Target ViewTarget
	HTML   string
}

func (u LoadHTML) Apply(a Activity) {
	if v := u.Target.view(a); v != nil {
		v.LoadDataWithBaseURL("", u.HTML, MimeTypeHTML, EncodingUTF8, "")
	}
}

// SetGroupVisible shows or hides every widget of a group within one update.
type SetGroupVisible struct {
	Group   Group
	Visible bool
}

func (u SetGroupVisible) Apply(a Activity) {
	vis := VisibleIf(u.Visible)
	for _, v := range u.Group.Views(a) {
		v.SetVisibility(vis)
	}
}

// ShowButton sets the show-answer button text and shows it when enabled.
type ShowButton struct {
	Text string
	// IsDefault is carried but not applied.
	// TODO: mark the button as the default action once the screen has a
	// notion of focus or affirmative styling.
	IsDefault bool
	IsEnabled bool
}

func (u ShowButton) Apply(a Activity) {
	b := a.ShowAnswerButton()
	b.SetText(u.Text)
	b.SetVisibility(VisibleIf(u.IsEnabled))
}

// Post schedules u on the UI loop.
func Post(p Poster, a Activity, u Update) bool {
	return p.Post(func() { u.Apply(a) })
}
