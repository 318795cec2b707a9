// Package historycmder provides the history command for browsing saved
// conversations without opening a chat session.
package historycmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/typhoon/pkg/backend"
	"github.com/papercomputeco/typhoon/pkg/cliui"
	"github.com/papercomputeco/typhoon/pkg/config"
	"github.com/papercomputeco/typhoon/pkg/utils"
)

const historyLongDesc string = `List your saved conversations, or print one of them.

Without arguments, lists the conversations the backend has filed under your
email, most recent first. With a session id, prints that conversation's
transcript along with the token statistics and rating of every reply.

Examples:
  typhoon history --email ada@example.com
  typhoon history 42`

const historyShortDesc string = "List or print saved conversations"

type historyCommander struct {
	backendTarget string
	email         string
}

var historyFlags = []string{
	config.FlagBackendTarget,
	config.FlagEmail,
}

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, historyFlags)
			cmder.backendTarget = v.GetString("client.backend_target")
			cmder.email = v.GetString("client.email")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			client := backend.New(cmder.backendTarget)

			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid session id %q", args[0])
				}
				return cmder.show(ctx, client, cmd.OutOrStdout(), id)
			}
			return cmder.list(ctx, client, cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagBackendTarget, &cmder.backendTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmail, &cmder.email)

	return cmd
}

func (c *historyCommander) list(ctx context.Context, client *backend.Client, w io.Writer) error {
	if c.email == "" {
		return errors.New(`an email is required: pass --email or run "typhoon config set client.email <you>"`)
	}

	sessions, err := client.UserSessions(ctx, c.email)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}

	fmt.Fprintln(w)
	if len(sessions) == 0 {
		fmt.Fprintf(w, "  %s\n\n", cliui.DimStyle.Render("No conversations yet."))
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "  %s  %s  %s\n",
			cliui.KeyStyle.Render(fmt.Sprintf("%6d", s.ID)),
			cliui.ValueStyle.Render(utils.Truncate(utils.FirstLine(s.Title), 60)),
			cliui.DimStyle.Render(s.UpdatedAt),
		)
	}
	fmt.Fprintln(w)
	return nil
}

func (c *historyCommander) show(ctx context.Context, client *backend.Client, w io.Writer, id int64) error {
	stored, err := client.SessionMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("loading conversation %d: %w", id, err)
	}

	fmt.Fprintln(w)
	if len(stored) == 0 {
		fmt.Fprintf(w, "  %s\n\n", cliui.DimStyle.Render("This conversation is empty."))
		return nil
	}

	for _, p := range stored {
		m := p.ToMessage()
		if !m.IsBot {
			fmt.Fprintf(w, "%s %s\n\n", cliui.UserStyle.Render("you"), m.Content)
			continue
		}
		fmt.Fprintf(w, "%s %s\n", cliui.BotStyle.Render("bot"), strings.TrimRight(cliui.RenderFor(w, m.Content), "\n"))
		fmt.Fprintf(w, "  %s  %s\n\n",
			cliui.DimStyle.Render(cliui.FormatStats(m.TokenCount, m.TokenRate)),
			cliui.DimStyle.Render(string(m.Preference)),
		)
	}
	return nil
}
