package entity

import (
	"sort"

	"github.com/mbeoliero/parley/pkg/event"
)

// Reaction is one (message, user, emoji) triple
type Reaction struct {
	Id             int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	MessageId      string `json:"message_id" gorm:"column:message_id;size:64;uniqueIndex:uk_reaction,priority:1"`
	UserId         string `json:"user_id" gorm:"column:user_id;size:191;uniqueIndex:uk_reaction,priority:2"`
	Emoji          string `json:"emoji" gorm:"column:emoji;size:64;uniqueIndex:uk_reaction,priority:3"`
	ConversationId string `json:"conversation_id" gorm:"column:conversation_id;size:191;index"`
	CreatedAt      int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
}

// TableName returns the table name for Reaction
func (Reaction) TableName() string {
	return "reactions"
}

// AggregateReactions groups rows of one message by emoji.
// Emojis are ordered by first reaction time, reactor ids lexicographically,
// so the same set of rows always yields the same aggregate.
func AggregateReactions(rows []*Reaction, viewerId string) []event.Reaction {
	type bucket struct {
		first int64
		agg   event.Reaction
	}
	buckets := make(map[string]*bucket)
	for _, r := range rows {
		b, ok := buckets[r.Emoji]
		if !ok {
			b = &bucket{first: r.CreatedAt, agg: event.Reaction{Emoji: r.Emoji}}
			buckets[r.Emoji] = b
		}
		if r.CreatedAt < b.first {
			b.first = r.CreatedAt
		}
		b.agg.ReactorIds = append(b.agg.ReactorIds, r.UserId)
		if r.UserId == viewerId {
			b.agg.ViewerHasReacted = true
		}
	}

	list := make([]*bucket, 0, len(buckets))
	for _, b := range buckets {
		sort.Strings(b.agg.ReactorIds)
		b.agg.Count = len(b.agg.ReactorIds)
		list = append(list, b)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].first != list[j].first {
			return list[i].first < list[j].first
		}
		return list[i].agg.Emoji < list[j].agg.Emoji
	})

	out := make([]event.Reaction, 0, len(list))
	for _, b := range list {
		out = append(out, b.agg)
	}
	return out
}
