package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"schedbot/cmd/schedctl/output"
	"schedbot/internal/post"
	"schedbot/internal/scheduler"
	"schedbot/internal/storage"
	"schedbot/internal/transport"
)

func (c *cli) postCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Create, inspect and remove scheduled posts",
	}
	cmd.AddCommand(c.postAddCmd(), c.postListCmd(), c.postShowCmd(), c.postDeleteCmd(), c.postPublishNowCmd())
	return cmd
}

type postFlags struct {
	id, owner, project string
	channel            string
	text, textFile     string
	markup             string
	mediaKind, media   string
	at, every          string
	buttons            []string
	draft              bool
}

func (c *cli) postAddCmd() *cobra.Command {
	var f postFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Schedule a new post",
		Long: `Schedule a new post.

--channel takes "channel:<id>" for a stored channel or a raw chat id.
--at takes an ISO-8601 instant; without a zone it is read as UTC.
--every repeats the post (duration like 24h, HH:MM, or seconds).
--button takes "Text=https://url" and may be repeated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.buildPost(f)
			if err != nil {
				return err
			}
			return c.withStore(cmd, func(ctx context.Context, st storage.Store) error {
				if err := st.SavePost(ctx, p); err != nil {
					return err
				}
				if c.jsonOut {
					return c.emitJSON(p)
				}
				c.print().Success("post %s scheduled for %s", p.ID, p.PublishTime)
				return nil
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.id, "id", "", "Post id (generated when empty)")
	fl.StringVar(&f.owner, "owner", "", "Owner user id")
	fl.StringVar(&f.project, "project", "", "Project id")
	fl.StringVar(&f.channel, "channel", "", "Target channel:<id> or chat id")
	fl.StringVar(&f.text, "text", "", "Post text")
	fl.StringVar(&f.textFile, "text-file", "", "Read post text from a file")
	fl.StringVar(&f.markup, "markup", "html", "Markup of the text: html, markdown or none")
	fl.StringVar(&f.mediaKind, "media-kind", "photo", "Attachment kind: photo, video or animation")
	fl.StringVar(&f.media, "media", "", "Attachment file id or URL")
	fl.StringVar(&f.at, "at", "", "Publish time (default now)")
	fl.StringVar(&f.every, "every", "", "Repeat interval")
	fl.StringArrayVar(&f.buttons, "button", nil, "Link button as Text=URL")
	fl.BoolVar(&f.draft, "draft", false, "Save as draft")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

func (c *cli) buildPost(f postFlags) (post.Post, error) {
	p := post.Post{
		ID:        strings.TrimSpace(f.id),
		OwnerID:   strings.TrimSpace(f.owner),
		ProjectID: strings.TrimSpace(f.project),
		Channel:   post.ParseChannelRef(f.channel),
		Text:      f.text,
		Markup:    strings.ToLower(strings.TrimSpace(f.markup)),
		Draft:     f.draft,
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if f.textFile != "" {
		b, err := os.ReadFile(f.textFile)
		if err != nil {
			return post.Post{}, err
		}
		p.Text = string(b)
	}
	if f.media != "" {
		p.Media = &post.Media{Kind: transport.MediaKind(strings.ToLower(f.mediaKind)), Handle: f.media}
	}

	at := c.clock.Now()
	if strings.TrimSpace(f.at) != "" {
		t, err := post.ParseTime(f.at)
		if err != nil {
			return post.Post{}, fmt.Errorf("--at: %w", err)
		}
		at = t
	}
	p.PublishTime = post.FormatTime(at)

	if strings.TrimSpace(f.every) != "" {
		d, err := scheduler.ParseInterval(f.every)
		if err != nil {
			return post.Post{}, fmt.Errorf("--every: %w", err)
		}
		if d < time.Second {
			return post.Post{}, errors.New("--every must be at least 1s")
		}
		p.RepeatInterval = int64(d / time.Second)
	}

	for _, raw := range f.buttons {
		text, url, ok := strings.Cut(raw, "=")
		if !ok || strings.TrimSpace(text) == "" || strings.TrimSpace(url) == "" {
			return post.Post{}, fmt.Errorf("--button %q: want Text=URL", raw)
		}
		p.Buttons = append(p.Buttons, transport.Button{Text: strings.TrimSpace(text), URL: strings.TrimSpace(url)})
	}

	if err := post.Validate(p); err != nil {
		return post.Post{}, err
	}
	return p, nil
}

func postState(p post.Post) string {
	switch {
	case p.Published:
		return "published"
	case p.Draft:
		return "draft"
	default:
		return "pending"
	}
}

func (c *cli) postListCmd() *cobra.Command {
	var f post.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List posts ordered by publish time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd, func(ctx context.Context, st storage.Store) error {
				posts, err := st.ListPosts(ctx, f)
				if err != nil {
					return err
				}
				if c.jsonOut {
					if posts == nil {
						posts = []post.Post{}
					}
					return c.emitJSON(posts)
				}
				pr := c.print()
				if len(posts) == 0 {
					pr.Info("no posts")
					return nil
				}
				pr.Section(fmt.Sprintf("Posts (%d)", len(posts)))
				for _, p := range posts {
					line := fmt.Sprintf("%s %s  %s  %s", output.StatusIcon(postState(p)), p.ID, p.PublishTime, p.Channel)
					if p.Repeats() {
						line += fmt.Sprintf("  every %s", p.Interval())
					}
					fmt.Fprintln(c.out, line)
				}
				return nil
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.OwnerID, "owner", "", "Only posts of this owner")
	fl.StringVar(&f.ProjectID, "project", "", "Only posts of this project")
	fl.BoolVar(&f.Pending, "pending", false, "Only unpublished, non-draft posts")
	fl.BoolVar(&f.Drafts, "drafts", false, "Only drafts")
	fl.IntVar(&f.Limit, "limit", 0, "Maximum number of posts")
	return cmd
}

type postDetail struct {
	Post       post.Post       `json:"post"`
	Deliveries []post.Delivery `json:"deliveries"`
}

func (c *cli) postShowCmd() *cobra.Command {
	var history int
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a post and its recent delivery attempts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd, func(ctx context.Context, st storage.Store) error {
				p, err := st.GetPost(ctx, args[0])
				if err != nil {
					return err
				}
				if p == nil {
					return fmt.Errorf("post %s: %w", args[0], post.ErrNotFound)
				}
				ds, err := st.Deliveries(ctx, p.ID, history)
				if err != nil {
					return err
				}
				if c.jsonOut {
					return c.emitJSON(postDetail{Post: *p, Deliveries: ds})
				}
				pr := c.print()
				pr.Section("Post " + p.ID)
				pr.Field("state", output.StatusIcon(postState(*p))+" "+postState(*p))
				pr.Field("channel", p.Channel)
				pr.Field("publish_time", p.PublishTime)
				if p.Repeats() {
					pr.Field("repeat", p.Interval())
				}
				if p.OwnerID != "" {
					pr.Field("owner", p.OwnerID)
				}
				if p.Media != nil {
					pr.Field("media", fmt.Sprintf("%s %s", p.Media.Kind, p.Media.Handle))
				}
				pr.Field("notified", p.Notified)
				pr.Field("text", p.Text)
				if len(ds) > 0 {
					pr.Section("Deliveries")
					for _, d := range ds {
						line := fmt.Sprintf("%s %s  %s", output.StatusIcon(string(d.Outcome)), d.At.Format(time.RFC3339), d.Outcome)
						if d.Error != "" {
							line += "  " + d.Error
						}
						fmt.Fprintln(c.out, line)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&history, "history", 10, "Number of delivery records to show")
	return cmd
}

func (c *cli) postDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd, func(ctx context.Context, st storage.Store) error {
				if err := st.DeletePost(ctx, args[0]); err != nil {
					return err
				}
				c.print().Success("post %s deleted", args[0])
				return nil
			})
		},
	}
}

func (c *cli) postPublishNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish-now <id>",
		Short: "Move a post's publish time to now",
		Long:  "Move a post's publish time to now so the bot sends it on its next tick. Drafts stay drafts.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd, func(ctx context.Context, st storage.Store) error {
				p, err := st.GetPost(ctx, args[0])
				if err != nil {
					return err
				}
				if p == nil {
					return fmt.Errorf("post %s: %w", args[0], post.ErrNotFound)
				}
				now := post.FormatTime(c.clock.Now())
				if err := st.UpdatePost(ctx, p.ID, post.Update{
					PublishTime: post.String(now),
					Published:   post.Bool(false),
					Notified:    post.Bool(true),
				}); err != nil {
					return err
				}
				pr := c.print()
				if p.Draft {
					pr.Warning("post %s is a draft and will not be sent until it is saved without --draft", p.ID)
				}
				pr.Success("post %s queued for %s", p.ID, now)
				return nil
			})
		},
	}
}
