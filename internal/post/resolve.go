package post

import "context"

// ResolveChannel turns a post's channel reference into a Channel.
//
// A direct chat id always resolves; a stored channel with the same chat id
// only contributes its name and thread. A "channel:<id>" reference resolves
// when the channel exists and has a chat id. (nil, nil) means unresolvable.
func ResolveChannel(ctx context.Context, s Store, ref ChannelRef) (*Channel, error) {
	if ref.ChatID != "" {
		c := &Channel{ChatID: ref.ChatID, Name: ref.ChatID}
		stored, err := s.GetChannelByChatID(ctx, ref.ChatID)
		if err != nil || stored == nil {
			return c, nil
		}
		c.ID = stored.ID
		c.ThreadID = stored.ThreadID
		if stored.Name != "" {
			c.Name = stored.Name
		}
		return c, nil
	}
	if ref.ChannelID == "" {
		return nil, nil
	}
	c, err := s.GetChannel(ctx, ref.ChannelID)
	if err != nil {
		return nil, err
	}
	if c == nil || c.ChatID == "" {
		return nil, nil
	}
	if c.Name == "" {
		c.Name = c.ChatID
	}
	return c, nil
}
