package ui_test

import (
	"context"
	"testing"
	"time"

	"github.com/caffeineduck/mnemobridge/ui"
	"github.com/caffeineduck/mnemobridge/ui/memui"
)

func newScreen(t *testing.T) *memui.Screen {
	t.Helper()
	s := memui.New()
	s.Start()
	t.Cleanup(s.Quit)
	return s
}

func snapshot(t *testing.T, s *memui.Screen) memui.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	return st
}

func TestLoadHTMLEncodingContract(t *testing.T) {
	s := newScreen(t)
	ui.Post(s, s, ui.LoadHTML{Target: ui.AnswerView, HTML: "<b>42</b>"})

	st := snapshot(t, s)
	a := st.Answer
	if a.Data != "<b>42</b>" {
		t.Errorf("expected answer html, got %q", a.Data)
	}
	if a.BaseURL != "" || a.HistoryURL != "" {
		t.Errorf("expected no base url and no history, got %q / %q", a.BaseURL, a.HistoryURL)
	}
	if a.MimeType != "text/html" || a.Encoding != "utf-8" {
		t.Errorf("expected text/html utf-8, got %s %s", a.MimeType, a.Encoding)
	}
	if st.Question.Mutations != 0 {
		t.Error("question view should be untouched")
	}
}

func TestSetLabelTargets(t *testing.T) {
	s := newScreen(t)
	ui.Post(s, s, ui.SetLabel{Target: ui.QuestionLabelTarget, Text: "Question:"})
	ui.Post(s, s, ui.SetLabel{Target: ui.AnswerLabelTarget, Text: "Answer:"})
	ui.Post(s, s, ui.SetLabel{Target: ui.StatusBarTarget, Text: "3 cards left"})

	st := snapshot(t, s)
	if st.QuestionLabel.Text != "Question:" {
		t.Errorf("question label = %q", st.QuestionLabel.Text)
	}
	if st.AnswerLabel.Text != "Answer:" {
		t.Errorf("answer label = %q", st.AnswerLabel.Text)
	}
	if st.StatusBar.Text != "3 cards left" {
		t.Errorf("status bar = %q", st.StatusBar.Text)
	}
}

func TestSetGroupVisibleGrades(t *testing.T) {
	s := newScreen(t)
	ui.Post(s, s, ui.SetGroupVisible{Group: ui.GradeGroup, Visible: false})

	st := snapshot(t, s)
	for i, g := range st.Grades {
		if g.Visibility != ui.Gone {
			t.Errorf("grade button %d: expected gone, got %v", i, g.Visibility)
		}
	}
	if st.ShowAnswer.Mutations != 0 {
		t.Error("show answer button is not part of the grade group")
	}
}

func TestShowButtonKeepsDefaultFlagInert(t *testing.T) {
	s := newScreen(t)
	ui.Post(s, s, ui.ShowButton{Text: "Show answer", IsDefault: false, IsEnabled: true})

	st := snapshot(t, s)
	if st.ShowAnswer.Text != "Show answer" || st.ShowAnswer.Visibility != ui.Visible {
		t.Errorf("unexpected button state %+v", st.ShowAnswer)
	}
	if st.ShowAnswer.Mutations != 2 {
		t.Errorf("expected text and visibility mutations only, got %d", st.ShowAnswer.Mutations)
	}
}

func TestGroupAndVisibilityStrings(t *testing.T) {
	if ui.QuestionGroup.String() != "question" || ui.GradeGroup.String() != "grades" {
		t.Error("unexpected group names")
	}
	if ui.Gone.String() != "gone" || ui.VisibleIf(true) != ui.Visible || ui.VisibleIf(false) != ui.Gone {
		t.Error("unexpected visibility mapping")
	}
}

func TestPosterFunc(t *testing.T) {
	var ran bool
	p := ui.PosterFunc(func(fn func()) bool {
		fn()
		return true
	})
	if !p.Post(func() { ran = true }) || !ran {
		t.Error("PosterFunc should run the closure")
	}
}
