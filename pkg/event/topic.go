package event

import (
	"fmt"
	"strings"
)

// TopicKind identifies the scope of a topic
type TopicKind int

const (
	TopicUnknown TopicKind = iota
	TopicConversation
	TopicUser
	TopicGlobal
)

const (
	conversationTopicPrefix = "conv:"
	userTopicPrefix         = "user:"

	// GlobalTopic carries coarse list-refresh and presence signals
	GlobalTopic = "global"
)

// ConversationTopic returns the topic of one conversation
func ConversationTopic(conversationId string) string {
	return conversationTopicPrefix + conversationId
}

// UserTopic returns the out-of-band notice topic of one user
func UserTopic(userId string) string {
	return userTopicPrefix + userId
}

// ParseTopic splits a topic into its kind and scoped id.
// The global topic has an empty id.
func ParseTopic(topic string) (TopicKind, string, error) {
	switch {
	case topic == GlobalTopic:
		return TopicGlobal, "", nil
	case strings.HasPrefix(topic, conversationTopicPrefix) && len(topic) > len(conversationTopicPrefix):
		return TopicConversation, topic[len(conversationTopicPrefix):], nil
	case strings.HasPrefix(topic, userTopicPrefix) && len(topic) > len(userTopicPrefix):
		return TopicUser, topic[len(userTopicPrefix):], nil
	default:
		return TopicUnknown, "", fmt.Errorf("unknown topic %q", topic)
	}
}
