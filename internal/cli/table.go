package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/formzs/poe-to-gpt/internal/roster"
	pkgstrings "github.com/formzs/poe-to-gpt/pkg/strings"
)

// EmptyRosterMessage is printed instead of an empty table.
const EmptyRosterMessage = "no matching users"

const timeLayout = "2006-01-02 15:04"

// newTable creates a table writer with standard styling.
func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	return t
}

func renderAccounts(out io.Writer, page roster.Page, noHeaders bool) {
	if len(page.Accounts) == 0 {
		fmt.Fprintf(out, "%s %s\n", text.FgYellow.Sprint("📋"), text.FgYellow.Sprint(EmptyRosterMessage))
		return
	}

	t := newTable(out)
	if !noHeaders {
		t.AppendHeader(table.Row{"ID", "USERNAME", "ROLE", "STATUS", "CREATED", "LAST USED", "REASON"})
	}
	for _, a := range page.Accounts {
		t.AppendRow(table.Row{
			a.ID,
			a.Username,
			formatRole(a),
			formatStatus(a),
			formatTime(a.CreatedAt),
			formatLastUsed(a),
			pkgstrings.Truncate(a.DisableReason, pkgstrings.ReasonMaxLen),
		})
	}
	t.Render()

	fmt.Fprintf(out, "%s %s\n",
		text.FgHiBlue.Sprintf("Page %d of %d", page.Number, page.TotalPages),
		text.FgHiWhite.Sprintf("(%d users)", page.Total))
}

func renderAccountDetail(out io.Writer, a roster.Account) {
	t := newTable(out)
	t.AppendRows([]table.Row{
		{text.FgHiCyan.Sprint("ID"), strconv.FormatInt(a.ID, 10)},
		{text.FgHiCyan.Sprint("Username"), a.Username},
		{text.FgHiCyan.Sprint("Role"), formatRole(a)},
		{text.FgHiCyan.Sprint("Status"), formatStatus(a)},
		{text.FgHiCyan.Sprint("Disable reason"), a.DisableReason},
		{text.FgHiCyan.Sprint("Created"), formatTime(a.CreatedAt)},
		{text.FgHiCyan.Sprint("Last used"), formatLastUsed(a)},
	})
	t.Render()
}

func renderStatus(out io.Writer, s SessionStatus) {
	state := text.FgYellow.Sprint(s.State)
	if s.LoggedIn {
		state = text.FgGreen.Sprint(s.State)
	}
	t := newTable(out)
	t.AppendRows([]table.Row{
		{text.FgHiCyan.Sprint("Endpoint"), s.Endpoint},
		{text.FgHiCyan.Sprint("Session"), state},
		{text.FgHiCyan.Sprint("Scoped API key"), yesNo(s.HasScopedKey)},
	})
	if s.CredentialFile != "" {
		t.AppendRow(table.Row{text.FgHiCyan.Sprint("Credential file"), s.CredentialFile})
	}
	if s.LastError != "" {
		t.AppendRow(table.Row{text.FgHiCyan.Sprint("Last error"), text.FgRed.Sprint(s.LastError)})
	}
	t.Render()
}

func formatStatus(a roster.Account) string {
	if a.Enabled {
		return text.FgGreen.Sprint(a.Status())
	}
	return text.FgRed.Sprint(a.Status())
}

func formatRole(a roster.Account) string {
	if a.IsAdmin {
		return text.FgHiMagenta.Sprint(a.Role())
	}
	return a.Role()
}

func formatTime(ts roster.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format(timeLayout)
}

func formatLastUsed(a roster.Account) string {
	if a.LastUsedAt == nil || a.LastUsedAt.IsZero() {
		return "never"
	}
	return formatTime(*a.LastUsedAt)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
