package commands

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"schedbot/internal/post"
	"schedbot/internal/storage"
)

func (c *cli) userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage owner settings",
	}
	cmd.AddCommand(c.userSetCmd())
	return cmd
}

func (c *cli) userSetCmd() *cobra.Command {
	var u post.User
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create or replace an owner's settings",
		Long: `Create or replace an owner's settings.

--notify-before sets the reminder lead time in minutes; 0 disables reminders.
--chat overrides where notices go; by default the owner's private chat.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			u.ID = strings.TrimSpace(u.ID)
			u.Language = strings.ToLower(strings.TrimSpace(u.Language))
			if err := post.ValidateUser(u); err != nil {
				return err
			}
			return c.withStore(cmd, func(ctx context.Context, st storage.Store) error {
				if err := st.SaveUser(ctx, u); err != nil {
					return err
				}
				if c.jsonOut {
					return c.emitJSON(u)
				}
				c.print().Success("user %s saved (notices to %s)", u.ID, u.NoticeChat())
				return nil
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&u.ID, "id", "", "Owner user id")
	fl.StringVar(&u.ChatID, "chat", "", "Chat for owner notices")
	fl.StringVar(&u.Language, "lang", "", "Language of notices (en, ru)")
	fl.IntVar(&u.NotifyBeforeMinutes, "notify-before", 0, "Reminder lead time in minutes")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
