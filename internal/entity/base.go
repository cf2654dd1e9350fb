package entity

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mbeoliero/parley/pkg/constant"
)

// NowUnixMilli returns current unix timestamp in milliseconds
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// GenDirectConversationId generates the conversation Id of a direct chat
// Format: si_{min(userA,userB)}:{max(userA,userB)}
// Uses ":" as separator between userIds to support userIds containing "_"
func GenDirectConversationId(userA, userB string) string {
	users := []string{userA, userB}
	sort.Strings(users)
	return fmt.Sprintf("%s%s:%s", constant.DirectConversationPrefix, users[0], users[1])
}

// GenGroupConversationId generates conversation Id for group chat
// Format: sg_{groupId}
func GenGroupConversationId(groupId string) string {
	return fmt.Sprintf("%s%s", constant.GroupConversationPrefix, groupId)
}

// IsDirectConversation checks if conversation Id is for a direct chat
func IsDirectConversation(conversationId string) bool {
	return strings.HasPrefix(conversationId, constant.DirectConversationPrefix) && len(conversationId) > 3
}

// IsGroupConversation checks if conversation Id is for group chat
func IsGroupConversation(conversationId string) bool {
	return strings.HasPrefix(conversationId, constant.GroupConversationPrefix) && len(conversationId) > 3
}

// DirectPeers returns both user ids of a direct conversation Id
func DirectPeers(conversationId string) (string, string, bool) {
	if !IsDirectConversation(conversationId) {
		return "", "", false
	}
	a, b, ok := strings.Cut(conversationId[len(constant.DirectConversationPrefix):], ":")
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}
