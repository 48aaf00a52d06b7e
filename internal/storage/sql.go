package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"schedbot/internal/post"
	"schedbot/internal/transport"
	logx "schedbot/pkg/logx"
)

var errNoRows = errors.New("storage: no rows")

type scanner interface {
	Scan(dest ...any) error
}

type rowIter interface {
	scanner
	Next() bool
	Err() error
	Close()
}

// conn hides the driver API differences between database/sql and pgx.
// Queries are written with '?' placeholders; drivers rebind as needed.
type conn interface {
	exec(ctx context.Context, q string, args ...any) (int64, error)
	query(ctx context.Context, q string, args ...any) (rowIter, error)
	queryRow(ctx context.Context, q string, args ...any) scanner
	close() error
}

// sqlStore implements Store on top of a conn.
type sqlStore struct {
	c   conn
	log logx.Logger
}

const postColumns = `id, owner_id, project_id, channel_id, chat_id, text, markup,
	media_kind, media_handle, buttons, publish_time, repeat_interval, draft, published, notified`

func (s *sqlStore) Close() error {
	if s == nil || s.c == nil {
		return nil
	}
	return s.c.close()
}

// DuePosts filters pending rows in Go: publish_time is kept verbatim, so
// only the parser can tell whether a row is due.
func (s *sqlStore) DuePosts(ctx context.Context, now time.Time) ([]post.Post, error) {
	pending, err := s.PendingPosts(ctx)
	if err != nil {
		return nil, err
	}
	out := pending[:0]
	for _, p := range pending {
		if p.Due(now) {
			out = append(out, p)
		}
	}
	sortPosts(out)
	return out, nil
}

func (s *sqlStore) PendingPosts(ctx context.Context) ([]post.Post, error) {
	return s.ListPosts(ctx, post.Filter{Pending: true})
}

func (s *sqlStore) ListPosts(ctx context.Context, f post.Filter) ([]post.Post, error) {
	var (
		where []string
		args  []any
	)
	if f.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.Pending {
		where = append(where, "published = ? AND draft = ?")
		args = append(args, false, false)
	}
	if f.Drafts {
		where = append(where, "draft = ?")
		args = append(args, true)
	}
	q := "SELECT " + postColumns + " FROM posts"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY publish_time, id"

	rows, err := s.c.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]post.Post, 0, 16)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortPosts(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *sqlStore) GetPost(ctx context.Context, id string) (*post.Post, error) {
	p, err := scanPost(s.c.queryRow(ctx, "SELECT "+postColumns+" FROM posts WHERE id = ?", id))
	if errors.Is(err, errNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *sqlStore) SavePost(ctx context.Context, p post.Post) error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrNoID
	}
	buttons, err := json.Marshal(p.Buttons.Keyboard())
	if err != nil {
		return err
	}
	var kind, handle string
	if p.Media != nil {
		kind, handle = string(p.Media.Kind), p.Media.Handle
	}
	now := time.Now().UTC().UnixMilli()
	_, err = s.c.exec(ctx,
		`INSERT INTO posts(`+postColumns+`, created_ms, updated_ms)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   owner_id=excluded.owner_id, project_id=excluded.project_id,
		   channel_id=excluded.channel_id, chat_id=excluded.chat_id,
		   text=excluded.text, markup=excluded.markup,
		   media_kind=excluded.media_kind, media_handle=excluded.media_handle,
		   buttons=excluded.buttons, publish_time=excluded.publish_time,
		   repeat_interval=excluded.repeat_interval, draft=excluded.draft,
		   published=excluded.published, notified=excluded.notified,
		   updated_ms=excluded.updated_ms`,
		p.ID, p.OwnerID, p.ProjectID, p.Channel.ChannelID, p.Channel.ChatID, p.Text, p.Markup,
		kind, handle, string(buttons), p.PublishTime, p.RepeatInterval, p.Draft, p.Published, p.Notified,
		now, now,
	)
	return err
}

func (s *sqlStore) DeletePost(ctx context.Context, id string) error {
	n, err := s.c.exec(ctx, "DELETE FROM posts WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n == 0 {
		return post.ErrNotFound
	}
	return nil
}

func (s *sqlStore) UpdatePost(ctx context.Context, id string, u post.Update) error {
	var (
		set  []string
		args []any
	)
	if u.PublishTime != nil {
		set = append(set, "publish_time = ?")
		args = append(args, *u.PublishTime)
	}
	if u.Published != nil {
		set = append(set, "published = ?")
		args = append(args, *u.Published)
	}
	if u.Notified != nil {
		set = append(set, "notified = ?")
		args = append(args, *u.Notified)
	}
	if len(set) == 0 {
		return nil
	}
	set = append(set, "updated_ms = ?")
	args = append(args, time.Now().UTC().UnixMilli(), id)

	n, err := s.c.exec(ctx, "UPDATE posts SET "+strings.Join(set, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return post.ErrNotFound
	}
	return nil
}

func (s *sqlStore) MarkPublished(ctx context.Context, id string) error {
	return s.UpdatePost(ctx, id, post.Update{Published: post.Bool(true)})
}

func (s *sqlStore) GetChannel(ctx context.Context, id string) (*post.Channel, error) {
	return s.channel(ctx, "SELECT id, chat_id, name, thread_id FROM channels WHERE id = ?", id)
}

func (s *sqlStore) GetChannelByChatID(ctx context.Context, chatID string) (*post.Channel, error) {
	return s.channel(ctx, "SELECT id, chat_id, name, thread_id FROM channels WHERE chat_id = ? ORDER BY id LIMIT 1", chatID)
}

func (s *sqlStore) channel(ctx context.Context, q string, arg string) (*post.Channel, error) {
	var c post.Channel
	err := s.c.queryRow(ctx, q, arg).Scan(&c.ID, &c.ChatID, &c.Name, &c.ThreadID)
	if errors.Is(err, errNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *sqlStore) SaveChannel(ctx context.Context, c post.Channel) error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrNoID
	}
	_, err := s.c.exec(ctx,
		`INSERT INTO channels(id, chat_id, name, thread_id) VALUES(?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET chat_id=excluded.chat_id, name=excluded.name, thread_id=excluded.thread_id`,
		c.ID, c.ChatID, c.Name, c.ThreadID,
	)
	return err
}

func (s *sqlStore) ListChannels(ctx context.Context) ([]post.Channel, error) {
	rows, err := s.c.query(ctx, "SELECT id, chat_id, name, thread_id FROM channels ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []post.Channel
	for rows.Next() {
		var c post.Channel
		if err := rows.Scan(&c.ID, &c.ChatID, &c.Name, &c.ThreadID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqlStore) GetUser(ctx context.Context, ownerID string) (*post.User, error) {
	var u post.User
	err := s.c.queryRow(ctx,
		"SELECT id, chat_id, language, notify_before_minutes FROM users WHERE id = ?", ownerID,
	).Scan(&u.ID, &u.ChatID, &u.Language, &u.NotifyBeforeMinutes)
	if errors.Is(err, errNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *sqlStore) SaveUser(ctx context.Context, u post.User) error {
	if strings.TrimSpace(u.ID) == "" {
		return ErrNoID
	}
	_, err := s.c.exec(ctx,
		`INSERT INTO users(id, chat_id, language, notify_before_minutes) VALUES(?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET chat_id=excluded.chat_id, language=excluded.language,
		   notify_before_minutes=excluded.notify_before_minutes`,
		u.ID, u.ChatID, u.Language, u.NotifyBeforeMinutes,
	)
	return err
}

func (s *sqlStore) RecordDelivery(ctx context.Context, d post.Delivery) error {
	if d.At.IsZero() {
		d.At = time.Now()
	}
	_, err := s.c.exec(ctx,
		`INSERT INTO deliveries(post_id, at_ms, outcome, error, message_ids) VALUES(?,?,?,?,?)`,
		d.PostID, d.At.UTC().UnixMilli(), string(d.Outcome), d.Error, joinInts(d.MessageIDs),
	)
	return err
}

func (s *sqlStore) Deliveries(ctx context.Context, postID string, limit int) ([]post.Delivery, error) {
	q := "SELECT post_id, at_ms, outcome, error, message_ids FROM deliveries"
	var args []any
	if postID != "" {
		q += " WHERE post_id = ?"
		args = append(args, postID)
	}
	q += " ORDER BY at_ms DESC, id DESC"
	if limit > 0 {
		q += " LIMIT " + strconv.Itoa(limit)
	}
	rows, err := s.c.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []post.Delivery
	for rows.Next() {
		var (
			d       post.Delivery
			atMS    int64
			outcome string
			ids     string
		)
		if err := rows.Scan(&d.PostID, &atMS, &outcome, &d.Error, &ids); err != nil {
			return nil, err
		}
		d.At = time.UnixMilli(atMS).UTC()
		d.Outcome = post.Outcome(outcome)
		d.MessageIDs = splitInts(ids)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqlStore) PruneDeliveries(ctx context.Context, before time.Time) (int64, error) {
	return s.c.exec(ctx, "DELETE FROM deliveries WHERE at_ms < ?", before.UTC().UnixMilli())
}

func scanPost(row scanner) (post.Post, error) {
	var (
		p            post.Post
		kind, handle string
		buttons      string
	)
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.ProjectID, &p.Channel.ChannelID, &p.Channel.ChatID, &p.Text, &p.Markup,
		&kind, &handle, &buttons, &p.PublishTime, &p.RepeatInterval, &p.Draft, &p.Published, &p.Notified,
	)
	if err != nil {
		return post.Post{}, err
	}
	if kind != "" && handle != "" {
		p.Media = &post.Media{Kind: transport.MediaKind(kind), Handle: handle}
	}
	if buttons != "" {
		// Malformed stored buttons degrade to none.
		_ = json.Unmarshal([]byte(buttons), &p.Buttons)
	}
	return p, nil
}

func joinInts(v []int) string {
	parts := make([]string, 0, len(v))
	for _, n := range v {
		parts = append(parts, strconv.Itoa(n))
	}
	return strings.Join(parts, ",")
}

func splitInts(s string) []int {
	if s == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// rebindDollar rewrites '?' placeholders as $1, $2, ...
func rebindDollar(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}
