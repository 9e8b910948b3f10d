package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/mnemobridge/internal/logging"
	"github.com/caffeineduck/mnemobridge/ui"
	"github.com/caffeineduck/mnemobridge/ui/tui"
	"github.com/caffeineduck/mnemobridge/worker"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review cards in the terminal (default)",
	Long: `Start the review application and show its screen in the terminal.

Keys:
  space, enter  show answer
  0-5           grade the current card
  q, esc        quit`,
	Args: cobra.NoArgs,
	RunE: runReview,
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	fs := cmd.Flags()

	// The screen owns the terminal, so logs are only written to --log-file.
	log, closeLog, err := openLog(fs, nil)
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := workerConfig(fs, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()

	var w *worker.Worker
	screen := tui.New(func() tui.Controller {
		if h, ok := w.Handler(); ok {
			return h
		}
		return nil
	}, tui.WithLogger(logging.Component(log, "ui")))
	w = worker.New(cfg, screen, screen)

	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	go func() {
		if _, err := w.WaitReady(ctx); err != nil && ctx.Err() == nil {
			ui.Post(screen, screen, ui.SetLabel{Target: ui.StatusBarTarget, Text: err.Error()})
		}
	}()

	uiErr := tui.Run(ctx, screen, tea.WithInput(cmd.InOrStdin()), tea.WithOutput(cmd.OutOrStdout()))

	w.Quit()
	runErr := <-errc
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return uiErr
	}
	return nil
}
