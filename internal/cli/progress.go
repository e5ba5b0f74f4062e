package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"golang.org/x/term"

	"github.com/formzs/poe-to-gpt/internal/apiclient"
)

// IsTerminal reports whether v is a file descriptor attached to a terminal.
func IsTerminal(v any) bool {
	f, ok := v.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// StartProgress shows a spinner with suffix on out and returns the function
// that stops it. Nothing is shown when quiet is set or out is not a terminal.
func StartProgress(out io.Writer, quiet bool, suffix string) (stop func()) {
	if quiet || !IsTerminal(out) {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
	s.Suffix = " " + suffix
	s.Start()
	return s.Stop
}

// PromptReason asks for the reason an account is being disabled.
func PromptReason(in io.Reader, out io.Writer, username string) (string, error) {
	fmt.Fprintf(out, "Reason for disabling %s: ", username)
	line, err := readLine(in)
	if err != nil {
		return "", err
	}
	if line == "" {
		return "", apiclient.NewValidation("a reason is required to disable an account")
	}
	return line, nil
}

// Confirm asks a yes/no question. Anything but y or yes is a no.
func Confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := readLine(in)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func readLine(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
