package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"schedbot/internal/post"
	"schedbot/internal/storage"
)

func (c *cli) channelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Manage publishing targets",
	}
	cmd.AddCommand(c.channelAddCmd(), c.channelListCmd())
	return cmd
}

func (c *cli) channelAddCmd() *cobra.Command {
	var ch post.Channel
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			ch.ID = strings.TrimSpace(ch.ID)
			ch.ChatID = strings.TrimSpace(ch.ChatID)
			if err := post.ValidateChannel(ch); err != nil {
				return err
			}
			return c.withStore(cmd, func(ctx context.Context, st storage.Store) error {
				if err := st.SaveChannel(ctx, ch); err != nil {
					return err
				}
				c.print().Success("channel %s -> %s saved", ch.ID, ch.ChatID)
				return nil
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&ch.ID, "id", "", "Channel id used in channel:<id> references")
	fl.StringVar(&ch.ChatID, "chat", "", "Chat id or @username")
	fl.StringVar(&ch.Name, "name", "", "Display name")
	fl.IntVar(&ch.ThreadID, "thread", 0, "Forum topic id")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}

func (c *cli) channelListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd, func(ctx context.Context, st storage.Store) error {
				chans, err := st.ListChannels(ctx)
				if err != nil {
					return err
				}
				if c.jsonOut {
					if chans == nil {
						chans = []post.Channel{}
					}
					return c.emitJSON(chans)
				}
				pr := c.print()
				if len(chans) == 0 {
					pr.Info("no channels")
					return nil
				}
				pr.Section(fmt.Sprintf("Channels (%d)", len(chans)))
				for _, ch := range chans {
					line := fmt.Sprintf("%s  %s  %s", ch.ID, ch.ChatID, ch.Name)
					if ch.ThreadID != 0 {
						line += fmt.Sprintf("  thread %d", ch.ThreadID)
					}
					fmt.Fprintln(c.out, line)
				}
				return nil
			})
		},
	}
}
