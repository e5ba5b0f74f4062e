package console

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/formzs/poe-to-gpt/internal/roster"
	"github.com/formzs/poe-to-gpt/internal/session"
)

// errExit is returned by the exit command to end Run.
var errExit = errors.New("exit")

// command is one console command.
type command struct {
	name        string
	aliases     []string
	usage       string
	description string
	// completions are offered for the first argument.
	completions []string
	run         func(ctx context.Context, args []string) error
}

// registry manages available commands.
type registry struct {
	commands map[string]*command
	aliases  map[string]string // alias -> primary command name
	order    []string
}

func newRegistry() *registry {
	return &registry{
		commands: make(map[string]*command),
		aliases:  make(map[string]string),
	}
}

func (r *registry) register(cmd *command) {
	r.commands[cmd.name] = cmd
	r.order = append(r.order, cmd.name)
	for _, alias := range cmd.aliases {
		r.aliases[alias] = cmd.name
	}
}

// get retrieves a command by name or alias.
func (r *registry) get(name string) (*command, bool) {
	if cmd, exists := r.commands[name]; exists {
		return cmd, true
	}
	if primary, exists := r.aliases[name]; exists {
		cmd, exists := r.commands[primary]
		return cmd, exists
	}
	return nil, false
}

func (c *Console) registerCommands() {
	c.registry.register(&command{
		name:        "help",
		aliases:     []string{"?"},
		usage:       "help [command]",
		description: "Show available commands",
		run:         c.runHelp,
	})
	c.registry.register(&command{
		name:        "list",
		aliases:     []string{"ls"},
		usage:       "list",
		description: "Show the current page of users",
		run: func(ctx context.Context, _ []string) error {
			return c.apply(ctx, c.roster.ViewState())
		},
	})
	c.registry.register(&command{
		name:        "refresh",
		usage:       "refresh",
		description: "Fetch the roster from the server again",
		run: func(ctx context.Context, _ []string) error {
			return c.refresh(ctx, c.roster.ViewState())
		},
	})
	c.registry.register(&command{
		name:        "search",
		aliases:     []string{"find"},
		usage:       "search [text]",
		description: "Match usernames or ids containing text, no text clears the search",
		run: func(ctx context.Context, args []string) error {
			vs := c.roster.ViewState()
			vs.Search = strings.Join(args, " ")
			vs.Page = 1
			return c.apply(ctx, vs)
		},
	})
	c.registry.register(&command{
		name:        "status",
		usage:       "status <all|enabled|disabled>",
		description: "Filter users by account status",
		completions: []string{"all", "enabled", "disabled"},
		run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return usageError("status <all|enabled|disabled>")
			}
			f, err := roster.ParseStatusFilter(args[0])
			if err != nil {
				return err
			}
			vs := c.roster.ViewState()
			vs.Status = f
			vs.Page = 1
			return c.apply(ctx, vs)
		},
	})
	c.registry.register(&command{
		name:        "role",
		aliases:     []string{"admin"},
		usage:       "role <all|admin|nonAdmin>",
		description: "Filter users by admin flag",
		completions: []string{"all", "admin", "nonAdmin"},
		run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return usageError("role <all|admin|nonAdmin>")
			}
			f, err := roster.ParseAdminFilter(args[0])
			if err != nil {
				return err
			}
			vs := c.roster.ViewState()
			vs.Admin = f
			vs.Page = 1
			return c.apply(ctx, vs)
		},
	})
	c.registry.register(&command{
		name:        "sort",
		usage:       "sort <username|user_id|created_at|last_used_at|none> [asc|desc]",
		description: "Order users by a field",
		completions: []string{"username", "user_id", "created_at", "last_used_at", "none"},
		run: func(ctx context.Context, args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return usageError("sort <field|none> [asc|desc]")
			}
			vs := c.roster.ViewState()
			if args[0] == "none" {
				vs.SortField = roster.SortNone
				return c.apply(ctx, vs)
			}
			field, err := roster.ParseSortField(args[0])
			if err != nil {
				return err
			}
			dir := roster.SortAsc
			if len(args) == 2 {
				if dir, err = roster.ParseSortDirection(args[1]); err != nil {
					return err
				}
			}
			vs.SortField, vs.SortDirection = field, dir
			return c.apply(ctx, vs)
		},
	})
	c.registry.register(&command{
		name:        "page",
		aliases:     []string{"p"},
		usage:       "page <n|next|prev>",
		description: "Go to another page",
		completions: []string{"next", "prev"},
		run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return usageError("page <n|next|prev>")
			}
			vs := c.roster.ViewState()
			switch args[0] {
			case "next", "n":
				vs.Page++
			case "prev", "previous":
				vs.Page--
			default:
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("invalid page %q", args[0])
				}
				vs.Page = n
			}
			return c.apply(ctx, vs)
		},
	})
	c.registry.register(&command{
		name:        "show",
		aliases:     []string{"describe"},
		usage:       "show <id>",
		description: "Show one user",
		run: func(_ context.Context, args []string) error {
			id, err := accountID(args, "show <id>")
			if err != nil {
				return err
			}
			a, ok := c.roster.Account(id)
			if !ok {
				return fmt.Errorf("%w: %d", roster.ErrUnknownAccount, id)
			}
			return c.printer.PrintAccount(a)
		},
	})
	c.registry.register(&command{
		name:        "enable",
		usage:       "enable <id>",
		description: "Enable a user",
		run: func(ctx context.Context, args []string) error {
			id, err := accountID(args, "enable <id>")
			if err != nil {
				return err
			}
			return c.mutate(c.roster.SetEnabled(ctx, id, true, ""))
		},
	})
	c.registry.register(&command{
		name:        "disable",
		usage:       "disable <id> <reason>",
		description: "Disable a user, the reason is shown to them",
		run: func(ctx context.Context, args []string) error {
			if len(args) < 1 {
				return usageError("disable <id> <reason>")
			}
			id, err := accountID(args[:1], "disable <id> <reason>")
			if err != nil {
				return err
			}
			return c.mutate(c.roster.SetEnabled(ctx, id, false, strings.Join(args[1:], " ")))
		},
	})
	c.registry.register(&command{
		name:        "grant",
		usage:       "grant <id>",
		description: "Give a user administrator rights",
		run: func(ctx context.Context, args []string) error {
			id, err := accountID(args, "grant <id>")
			if err != nil {
				return err
			}
			return c.mutate(c.roster.SetAdminFlag(ctx, id, true))
		},
	})
	c.registry.register(&command{
		name:        "revoke",
		usage:       "revoke <id>",
		description: "Remove a user's administrator rights",
		run: func(ctx context.Context, args []string) error {
			id, err := accountID(args, "revoke <id>")
			if err != nil {
				return err
			}
			return c.mutate(c.roster.SetAdminFlag(ctx, id, false))
		},
	})
	c.registry.register(&command{
		name:        "reset-key",
		usage:       "reset-key <id>",
		description: "Issue a new API key for a user",
		run: func(ctx context.Context, args []string) error {
			id, err := accountID(args, "reset-key <id>")
			if err != nil {
				return err
			}
			return c.mutate(c.roster.ResetKey(ctx, id))
		},
	})
	c.registry.register(&command{
		name:        "whoami",
		aliases:     []string{"session"},
		usage:       "whoami",
		description: "Show the session state",
		run: func(context.Context, []string) error {
			return c.printer.PrintStatus(c.status())
		},
	})
	if c.login != nil {
		c.registry.register(&command{
			name:        "login",
			usage:       "login",
			description: "Sign in through the browser",
			run: func(ctx context.Context, _ []string) error {
				if c.session.State() == session.StateAuthenticated {
					fmt.Fprintln(c.out, "Already logged in.")
					return nil
				}
				if err := c.login(ctx); err != nil {
					return err
				}
				return c.refresh(ctx, c.roster.ViewState())
			},
		})
	}
	c.registry.register(&command{
		name:        "exit",
		aliases:     []string{"quit", "q"},
		usage:       "exit",
		description: "Leave the console",
		run: func(context.Context, []string) error {
			return errExit
		},
	})
}

func (c *Console) runHelp(_ context.Context, args []string) error {
	if len(args) > 0 {
		cmd, ok := c.registry.get(args[0])
		if !ok {
			return fmt.Errorf("unknown command: %s", args[0])
		}
		fmt.Fprintf(c.out, "%s\n  %s\n", cmd.usage, cmd.description)
		if len(cmd.aliases) > 0 {
			fmt.Fprintf(c.out, "  aliases: %s\n", strings.Join(cmd.aliases, ", "))
		}
		return nil
	}

	width := 0
	for _, name := range c.registry.order {
		width = max(width, len(c.registry.commands[name].usage))
	}
	fmt.Fprintln(c.out, "Available commands:")
	for _, name := range c.registry.order {
		cmd := c.registry.commands[name]
		fmt.Fprintf(c.out, "  %-*s  %s\n", width, cmd.usage, cmd.description)
	}
	return nil
}

// names returns every command name and alias, sorted.
func (r *registry) names() []string {
	names := slices.Clone(r.order)
	for alias := range r.aliases {
		names = append(names, alias)
	}
	slices.Sort(names)
	return names
}

func accountID(args []string, usage string) (int64, error) {
	if len(args) != 1 {
		return 0, usageError(usage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid account id %q", args[0])
	}
	return id, nil
}

func usageError(usage string) error {
	return fmt.Errorf("usage: %s", usage)
}
