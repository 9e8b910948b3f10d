package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/mnemobridge/ui/memui"
	"github.com/caffeineduck/mnemobridge/worker"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive REPL inside the running application",
	Long: `Start the review application headless and read code lines into its
interpreter. Each line runs on the worker loop, with the application's
globals in scope.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.mnemosyne_history)")
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) error {
	fs := cmd.Flags()
	historyFile, _ := fs.GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".mnemosyne_history")
	}

	log, closeLog, err := openLog(fs, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := workerConfig(fs, log)
	if err != nil {
		return err
	}

	screen := memui.New()
	screen.Start()
	defer screen.Quit()

	w := worker.New(cfg, screen, screen)
	go w.Run(cmd.Context())
	defer func() {
		w.Quit()
		<-w.Done()
	}()

	h, err := w.WaitReady(cmd.Context())
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            ">>> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdin:             io.NopCloser(cmd.InOrStdin()),
		Stdout:            cmd.OutOrStdout(),
		Stderr:            cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	lang, _ := fs.GetString("lang")
	fmt.Fprintf(cmd.ErrOrStderr(), "mnemosyne %s REPL (type 'exit' to quit, Ctrl+D to exit)\n", lang)

	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(">>> ")
				}
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		// Handle multi-line input
		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt("... ")
			continue
		}

		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt(">>> ")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		out, err := execLine(cmd.Context(), h, line)
		if out != "" {
			fmt.Fprint(cmd.OutOrStdout(), out)
			if !strings.HasSuffix(out, "\n") {
				fmt.Fprintln(cmd.OutOrStdout())
			}
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	}
}

type execResult struct {
	out string
	err error
}

// execLine runs code on the worker loop and waits for its result.
func execLine(ctx context.Context, h *worker.Handler, code string) (string, error) {
	ch := make(chan execResult, 1)
	if !h.Exec(code, func(out string, err error) { ch <- execResult{out, err} }) {
		return "", worker.ErrUnavailable
	}
	select {
	case r := <-ch:
		return r.out, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
