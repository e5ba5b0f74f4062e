package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/formzs/poe-to-gpt/internal/cli"
	"github.com/formzs/poe-to-gpt/internal/roster"
)

// List-specific flags
var (
	listSearch   string
	listStatus   string
	listRole     string
	listSort     string
	listSortDir  string
	listDesc     bool
	listPage     int
	listPageSize int
)

// Mutation flags
var (
	disableReason string
	assumeYes     bool
)

// usersCmd represents the users command group
var usersCmd = &cobra.Command{
	Use:     "users",
	Aliases: []string{"user"},
	Short:   "List and manage user accounts",
	Long: `List and manage the user accounts of the deployment.

Examples:
  poeadmin users list                          # First page of all accounts
  poeadmin users list --search ali --desc      # Search and sort
  poeadmin users list --status disabled -o json
  poeadmin users show 42
  poeadmin users disable 42 --reason "abuse"
  poeadmin users enable 42
  poeadmin users grant-admin 42
  poeadmin users revoke-admin 42
  poeadmin users reset-key 42`,
}

var usersListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List user accounts",
	Args:    cobra.NoArgs,
	RunE:    runUsersList,
}

var usersShowCmd = &cobra.Command{
	Use:     "show <id>",
	Aliases: []string{"get", "describe"},
	Short:   "Show one user account",
	Args:    cobra.ExactArgs(1),
	RunE:    runUsersShow,
}

var usersEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a user account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(cmd, args[0], func(a *app, acc roster.Account) (roster.Result, error) {
			return a.roster.SetEnabled(cmd.Context(), acc.ID, true, "")
		})
	},
}

var usersDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a user account",
	Long: `Disable a user account. A reason is required. Without --reason it is
asked for interactively.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(cmd, args[0], func(a *app, acc roster.Account) (roster.Result, error) {
			reason := disableReason
			if reason == "" && cli.IsTerminal(os.Stdin) {
				var err error
				if reason, err = cli.PromptReason(cmd.InOrStdin(), cmd.ErrOrStderr(), acc.Username); err != nil {
					return roster.Result{}, err
				}
			}
			return a.roster.SetEnabled(cmd.Context(), acc.ID, false, reason)
		})
	},
}

var usersGrantAdminCmd = &cobra.Command{
	Use:   "grant-admin <id>",
	Short: "Grant administrator rights",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(cmd, args[0], func(a *app, acc roster.Account) (roster.Result, error) {
			return a.roster.SetAdminFlag(cmd.Context(), acc.ID, true)
		})
	},
}

var usersRevokeAdminCmd = &cobra.Command{
	Use:   "revoke-admin <id>",
	Short: "Revoke administrator rights",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(cmd, args[0], func(a *app, acc roster.Account) (roster.Result, error) {
			return a.roster.SetAdminFlag(cmd.Context(), acc.ID, false)
		})
	},
}

var usersResetKeyCmd = &cobra.Command{
	Use:   "reset-key <id>",
	Short: "Issue a new API key for a user",
	Long: `Issue a new API key for a user. The old key stops working immediately,
so the command asks for confirmation unless --yes is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(cmd, args[0], func(a *app, acc roster.Account) (roster.Result, error) {
			if !assumeYes {
				ok, err := cli.Confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("Reset the API key of %s?", acc.Username))
				if err != nil {
					return roster.Result{}, err
				}
				if !ok {
					return roster.Result{}, errAborted
				}
			}
			return a.roster.ResetKey(cmd.Context(), acc.ID)
		})
	},
}

var errAborted = errors.New("aborted")

func init() {
	usersListCmd.Flags().StringVar(&listSearch, "search", "", "Case-insensitive substring of the username, or a user id")
	usersListCmd.Flags().StringVar(&listStatus, "status", "all", "Status filter: all, enabled or disabled")
	usersListCmd.Flags().StringVar(&listRole, "role", "all", "Role filter: all, admin or nonAdmin")
	usersListCmd.Flags().StringVar(&listSort, "sort", "", "Sort by username, user_id, created_at or last_used_at")
	usersListCmd.Flags().StringVar(&listSortDir, "sort-dir", "asc", "Sort direction: asc or desc")
	usersListCmd.Flags().BoolVar(&listDesc, "desc", false, "Sort descending, same as --sort-dir desc")
	usersListCmd.Flags().IntVar(&listPage, "page", 1, "Page number, clamped to the last page")
	usersListCmd.Flags().IntVar(&listPageSize, "page-size", 0, "Accounts per page (default from config)")

	usersDisableCmd.Flags().StringVar(&disableReason, "reason", "", "Why the account is disabled")
	usersResetKeyCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")

	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersShowCmd)
	usersCmd.AddCommand(usersEnableCmd)
	usersCmd.AddCommand(usersDisableCmd)
	usersCmd.AddCommand(usersGrantAdminCmd)
	usersCmd.AddCommand(usersRevokeAdminCmd)
	usersCmd.AddCommand(usersResetKeyCmd)
	rootCmd.AddCommand(usersCmd)
}

// listViewState builds the view from the list flags.
func listViewState() (roster.ViewState, error) {
	var (
		vs  roster.ViewState
		err error
	)
	vs.Search = listSearch
	if vs.Status, err = roster.ParseStatusFilter(listStatus); err != nil {
		return vs, err
	}
	if vs.Admin, err = roster.ParseAdminFilter(listRole); err != nil {
		return vs, err
	}
	if vs.SortField, err = roster.ParseSortField(listSort); err != nil {
		return vs, err
	}
	dir := listSortDir
	if listDesc {
		dir = string(roster.SortDesc)
	}
	if vs.SortDirection, err = roster.ParseSortDirection(dir); err != nil {
		return vs, err
	}
	vs.Page = listPage
	vs.PageSize = listPageSize
	return vs, nil
}

func runUsersList(cmd *cobra.Command, args []string) error {
	vs, err := listViewState()
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	if err := a.requireSession(cmd.Context(), cmd); err != nil {
		return err
	}

	stop := startProgress(cmd, "Loading users...")
	page, err := a.roster.Refresh(cmd.Context(), vs)
	stop()
	if err != nil {
		return a.fail(err)
	}
	return a.printer.PrintPage(page)
}

func runUsersShow(cmd *cobra.Command, args []string) error {
	a, acc, err := loadAccount(cmd, args[0])
	if err != nil {
		return err
	}
	return a.printer.PrintAccount(acc)
}

// runMutation loads the account, runs fn and prints the outcome.
func runMutation(cmd *cobra.Command, rawID string, fn func(a *app, acc roster.Account) (roster.Result, error)) error {
	a, acc, err := loadAccount(cmd, rawID)
	if err != nil {
		return err
	}

	result, err := fn(a, acc)
	if err != nil {
		return a.fail(err)
	}
	if err := a.printer.PrintResult(result); err != nil {
		return err
	}
	if a.printer.Format() == cli.OutputFormatTable && !result.SessionEnded {
		if updated, ok := a.roster.Account(acc.ID); ok {
			return a.printer.PrintAccount(updated)
		}
	}
	return nil
}

// loadAccount resumes the session, fetches the roster and looks up one account.
func loadAccount(cmd *cobra.Command, rawID string) (*app, roster.Account, error) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return nil, roster.Account{}, fmt.Errorf("invalid account id %q", rawID)
	}

	a, err := newApp(cmd)
	if err != nil {
		return nil, roster.Account{}, err
	}
	if err := a.requireSession(cmd.Context(), cmd); err != nil {
		return nil, roster.Account{}, err
	}

	stop := startProgress(cmd, "Loading users...")
	_, err = a.roster.Refresh(cmd.Context(), roster.ViewState{})
	stop()
	if err != nil {
		return nil, roster.Account{}, a.fail(err)
	}

	acc, ok := a.roster.Account(id)
	if !ok {
		return nil, roster.Account{}, fmt.Errorf("%w: %d", roster.ErrUnknownAccount, id)
	}
	return a, acc, nil
}
