// Package console implements the interactive poeadmin console.
//
// The console keeps one roster View State for the whole session. Paging
// never refetches. Search, filter and sort changes refetch only when the
// roster controller reports that the current snapshot cannot answer them.
// Mutations are shown immediately from the controller's working copy.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/formzs/poe-to-gpt/internal/cli"
	"github.com/formzs/poe-to-gpt/internal/roster"
	"github.com/formzs/poe-to-gpt/internal/session"
	"github.com/formzs/poe-to-gpt/pkg/logging"
)

// StateAuthRequired is shown in the prompt while there is no session.
const StateAuthRequired = "[AUTH REQUIRED]"

// commandExecutionTimeout bounds a single console command.
const commandExecutionTimeout = 2 * time.Minute

// Roster is the part of the roster controller the console drives.
type Roster interface {
	Refresh(ctx context.Context, vs roster.ViewState) (roster.Page, error)
	SetView(vs roster.ViewState) roster.Page
	View() roster.Page
	ViewState() roster.ViewState
	NeedsRefresh(vs roster.ViewState) bool
	Account(id int64) (roster.Account, bool)
	SetAdminFlag(ctx context.Context, id int64, desired bool) (roster.Result, error)
	SetEnabled(ctx context.Context, id int64, desired bool, reason string) (roster.Result, error)
	ResetKey(ctx context.Context, id int64) (roster.Result, error)
}

// Session reports the session state for the prompt.
type Session interface {
	State() session.State
	LastError() error
}

// Config configures a Console.
type Config struct {
	// Endpoint is shown by whoami.
	Endpoint string
	// HistoryFile stores command history, empty disables history.
	HistoryFile string
	// Login runs the browser login. The login command is only offered when set.
	Login func(ctx context.Context) error
}

// Console is an interactive read-eval-print loop over the roster.
type Console struct {
	roster   Roster
	session  Session
	printer  *cli.Printer
	out      io.Writer
	endpoint string
	history  string
	login    func(ctx context.Context) error
	registry *registry
}

// New creates a console. Output goes to the printer's writer.
func New(r Roster, s Session, printer *cli.Printer, cfg Config) *Console {
	c := &Console{
		roster:   r,
		session:  s,
		printer:  printer,
		out:      printer.Out(),
		endpoint: cfg.Endpoint,
		history:  cfg.HistoryFile,
		login:    cfg.Login,
		registry: newRegistry(),
	}
	c.registerCommands()
	return c
}

// DefaultHistoryFile returns the history file inside the config directory.
func DefaultHistoryFile(configDir string) string {
	return filepath.Join(configDir, "console_history")
}

// Execute runs one console line. It returns io.EOF when the line asks to
// leave the console.
func (c *Console) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, ok := c.registry.get(fields[0])
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for a list)", fields[0])
	}

	ctx, cancel := context.WithTimeout(ctx, commandExecutionTimeout)
	defer cancel()

	err := cmd.run(ctx, fields[1:])
	if errors.Is(err, errExit) {
		return io.EOF
	}
	return err
}

// Run reads commands until exit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            c.prompt(),
		HistoryFile:       c.history,
		AutoComplete:      c.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdout:            c.out,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	logging.Debug("Console", "Console started for %s", c.endpoint)
	fmt.Fprintln(c.out, "poeadmin console. Type 'help' for available commands. Use TAB for completion.")

	if c.session.State() == session.StateAuthenticated {
		c.report(c.refresh(ctx, c.roster.ViewState()))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		rl.SetPrompt(c.prompt())
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		} else if errors.Is(err, io.EOF) {
			fmt.Fprintln(c.out, "Goodbye!")
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		err = c.Execute(ctx, line)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(c.out, "Goodbye!")
			return nil
		}
		c.report(err)
	}
}

// report prints a command error without ending the console.
func (c *Console) report(err error) {
	if err == nil {
		return
	}
	err = cli.Translate(err, c.endpoint)
	fmt.Fprintln(c.out, text.FgRed.Sprint(cli.FormatError(err)))
}

func (c *Console) prompt() string {
	chevron := "»"
	if !unicodeSupported() {
		chevron = ">"
	}
	if c.session.State() != session.StateAuthenticated {
		return fmt.Sprintf("poeadmin %s %s ", StateAuthRequired, chevron)
	}
	return fmt.Sprintf("poeadmin %s ", chevron)
}

func (c *Console) completer() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, name := range c.registry.names() {
		cmd, _ := c.registry.get(name)
		var children []readline.PrefixCompleterInterface
		for _, arg := range cmd.completions {
			children = append(children, readline.PcItem(arg))
		}
		items = append(items, readline.PcItem(name, children...))
	}
	return readline.NewPrefixCompleter(items...)
}

// apply shows vs, refetching only when the current snapshot cannot answer it.
func (c *Console) apply(ctx context.Context, vs roster.ViewState) error {
	if c.roster.NeedsRefresh(vs) {
		return c.refresh(ctx, vs)
	}
	return c.printer.PrintPage(c.roster.SetView(vs))
}

func (c *Console) refresh(ctx context.Context, vs roster.ViewState) error {
	page, err := c.roster.Refresh(ctx, vs)
	if errors.Is(err, roster.ErrSuperseded) {
		page, err = c.roster.View(), nil
	}
	if err != nil {
		return err
	}
	return c.printer.PrintPage(page)
}

func (c *Console) mutate(result roster.Result, err error) error {
	if err != nil {
		if result.SessionEnded {
			fmt.Fprintln(c.out, cli.FormatWarning("Your session has ended."))
		}
		return err
	}
	if err := c.printer.PrintResult(result); err != nil {
		return err
	}
	if result.SessionEnded {
		return nil
	}
	return c.printer.PrintPage(c.roster.View())
}

func (c *Console) status() cli.SessionStatus {
	state := c.session.State()
	status := cli.SessionStatus{
		Endpoint: c.endpoint,
		State:    state.String(),
		LoggedIn: state == session.StateAuthenticated,
	}
	if err := c.session.LastError(); err != nil {
		status.LastError = err.Error()
	}
	return status
}

// unicodeSupported checks if the terminal likely supports unicode characters.
func unicodeSupported() bool {
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}
