package constant

import (
	"strconv"
	"strings"
)

const (
	ConversationKindDirect = 1
	ConversationKindGroup  = 2
)

// Conversation id prefixes; direct ids are si_{min}:{max} of the two user ids
const (
	DirectConversationPrefix = "si_"
	GroupConversationPrefix  = "sg_"
)

const (
	MsgTypeText   = 1
	MsgTypeImage  = 2
	MsgTypeFile   = 5
	MsgTypeSystem = 10
)

// IsValidMsgType reports whether clients may send t; system messages are server-made
func IsValidMsgType(t int32) bool {
	return t == MsgTypeText || t == MsgTypeImage || t == MsgTypeFile
}

// Participant role levels, ordered by privilege
const (
	RoleLevelMember = 0
	RoleLevelAdmin  = 1
	RoleLevelOwner  = 2
)

const (
	PlatformIdUnknown = 0
	PlatformIdIOS     = 1
	PlatformIdAndroid = 2
	PlatformIdWindows = 3
	PlatformIdMacOS   = 4
	PlatformIdWeb     = 5
)

var redisKeyPrefix = "parley:"

// InitRedisKeyPrefix sets the namespace of every Redis key; empty keeps the default
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

func redisKey(parts ...string) string {
	return redisKeyPrefix + strings.Join(parts, ":")
}

// OnlineKey exists while userId is online
func OnlineKey(userId string) string {
	return redisKey("online", userId)
}

// MembersKey caches a conversation's participant set
func MembersKey(conversationId string) string {
	return redisKey("members", conversationId)
}

// SessionKey holds userId's login sessions on one platform
func SessionKey(userId string, platformId int) string {
	return redisKey("session", userId, strconv.Itoa(platformId))
}

// SessionPattern matches userId's sessions on every platform
func SessionPattern(userId string) string {
	return redisKey("session", userId, "*")
}

// TopicChannel is the pub/sub channel carrying a fanout topic
func TopicChannel(topic string) string {
	return redisKey("topic", topic)
}

// TopicPattern matches every topic channel
func TopicPattern() string {
	return redisKey("topic", "*")
}

// TopicFromChannel reverses TopicChannel
func TopicFromChannel(channel string) (string, bool) {
	topic, ok := strings.CutPrefix(channel, redisKey("topic", ""))
	return topic, ok && topic != ""
}
