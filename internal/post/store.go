package post

import (
	"context"
	"time"
)

// Store is what the dispatcher and notifier need from persistence.
//
// Lookups return (nil, nil) when the record does not exist. Only a single
// UpdatePost call is assumed to be atomic.
type Store interface {
	// DuePosts returns every post with !published, !draft and publish_time <= now.
	DuePosts(ctx context.Context, now time.Time) ([]Post, error)
	// PendingPosts returns every post with !published and !draft.
	PendingPosts(ctx context.Context) ([]Post, error)
	GetChannel(ctx context.Context, id string) (*Channel, error)
	GetChannelByChatID(ctx context.Context, chatID string) (*Channel, error)
	GetUser(ctx context.Context, ownerID string) (*User, error)
	UpdatePost(ctx context.Context, id string, u Update) error
	// MarkPublished sets published=true and nothing else.
	MarkPublished(ctx context.Context, id string) error
}

// History keeps per-attempt delivery records.
type History interface {
	RecordDelivery(ctx context.Context, d Delivery) error
	Deliveries(ctx context.Context, postID string, limit int) ([]Delivery, error)
	PruneDeliveries(ctx context.Context, before time.Time) (int64, error)
}

// Filter narrows ListPosts.
type Filter struct {
	OwnerID   string
	ProjectID string
	// Pending limits to !published && !draft.
	Pending bool
	Drafts  bool
	Limit   int
}

// Admin is the operator surface used by schedctl.
type Admin interface {
	SavePost(ctx context.Context, p Post) error
	GetPost(ctx context.Context, id string) (*Post, error)
	ListPosts(ctx context.Context, f Filter) ([]Post, error)
	DeletePost(ctx context.Context, id string) error
	SaveChannel(ctx context.Context, c Channel) error
	ListChannels(ctx context.Context) ([]Channel, error)
	SaveUser(ctx context.Context, u User) error
}
