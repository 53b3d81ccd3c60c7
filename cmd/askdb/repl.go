package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"github.com/koustreak/askdb/internal/chat"
	"github.com/koustreak/askdb/internal/errs"
	"github.com/koustreak/askdb/internal/session"
	"github.com/spf13/cobra"
)

const replHelp = `Type a question to ask it. Commands:
  \connect <location>  connect to a database (postgres://, mysql://, file, .sql script, "sample")
  \schema              show the schema text the model sees
  \query               show the last validated query and its result
  \clear               clear the conversation history
  \help                show this help
  \quit                exit`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a database interactively",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if global.logLevel == "" && os.Getenv("ASKDB_LOG_LEVEL") == "" {
		cfg.Log.Level = "warn"
	}
	cfg.Log.Format = "console"

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.close()

	rl, err := readline.NewFromConfig(&readline.Config{
		Prompt:          "askdb> ",
		HistoryFile:     historyPath(),
		HistoryLimit:    500,
		InterruptPrompt: "^C",
		EOFPrompt:       `\quit`,
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer func() { _ = rl.Close() }()

	r := &repl{sessions: a.sessions, chat: a.chat, out: newRenderer(os.Stdout)}
	r.banner()

	for {
		line, err := rl.ReadLine()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			break
		}
		if r.execute(cmd.Context(), line) {
			break
		}
	}
	return nil
}

// repl executes one input line at a time.
type repl struct {
	sessions *session.Manager
	chat     *chat.Handler
	out      *renderer
}

func (r *repl) banner() {
	w := r.out.out
	fmt.Fprintln(w, `askdb - ask questions about your database. \help for commands.`)
	if s, err := r.sessions.Current(); err == nil {
		fmt.Fprintf(w, "Connected to %s (%s).\n", s.Location(), s.Dialect())
	} else {
		fmt.Fprintln(w, `Not connected. Use \connect <location> to start.`)
	}
}

// execute runs line and reports whether the session should end.
func (r *repl) execute(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	w := r.out.out

	name, arg, isCmd := parseCommand(line)
	if !isCmd {
		r.ask(ctx, line)
		return false
	}

	switch name {
	case "quit", "q", "exit":
		return true
	case "help", "h", "?":
		fmt.Fprintln(w, replHelp)
	case "connect", "c":
		r.connect(ctx, arg)
	case "schema":
		text, err := r.sessions.Describe(ctx)
		if err != nil {
			printError(w, err)
			return false
		}
		fmt.Fprintln(w, text)
	case "query":
		turn, ok := r.chat.LastTurn()
		if !ok || turn.Query == "" {
			fmt.Fprintln(w, "No query yet.")
			return false
		}
		r.out.query(turn.Query, turn.Result)
	case "clear":
		r.chat.Clear()
		fmt.Fprintln(w, "History cleared.")
	default:
		fmt.Fprintf(w, "Unknown command \\%s. Type \\help for commands.\n", name)
	}
	return false
}

func (r *repl) connect(ctx context.Context, location string) {
	w := r.out.out
	if location == "" {
		fmt.Fprintln(w, `Usage: \connect <location>`)
		return
	}
	s, err := r.sessions.Connect(ctx, location)
	if err != nil {
		printError(w, err)
		return
	}
	tables, err := s.Tables(ctx)
	if err != nil {
		printError(w, err)
		return
	}
	fmt.Fprintf(w, "Connected to %s (%s, %d tables).\n", s.Location(), s.Dialect(), len(tables))
}

func (r *repl) ask(ctx context.Context, question string) {
	w := r.out.out

	var turn chat.Turn
	if r.out.interactive() {
		turn = r.chat.HandleTurn(ctx, question)
		if turn.OK() {
			r.out.answer(turn.Answer)
		}
	} else {
		streamed := false
		turn = r.chat.HandleTurnStream(ctx, question, func(chunk string) error {
			streamed = true
			_, err := io.WriteString(w, chunk)
			return err
		})
		if turn.OK() || streamed {
			fmt.Fprintln(w)
		}
	}
	if !turn.OK() {
		// The query ran; only the answer is missing.
		if turn.Kind == errs.ErrKindCompositionFailed {
			r.out.query(turn.Query, turn.Result)
		}
		fmt.Fprintln(w, turn.Error)
	}
}

// parseCommand splits a backslash command into its name and argument.
func parseCommand(line string) (name, arg string, ok bool) {
	if !strings.HasPrefix(line, `\`) {
		return "", "", false
	}
	name, arg, _ = strings.Cut(strings.TrimPrefix(line, `\`), " ")
	return strings.ToLower(name), strings.TrimSpace(arg), true
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", chat.UserMessage(err))
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".askdb_history")
}
