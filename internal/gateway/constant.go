package gateway

// WebSocket protocol identifiers
const (
	// Requests
	WSSubscribe   = 1001 // Subscribe to a conversation topic
	WSUnsubscribe = 1002 // Unsubscribe from a conversation topic
	WSSendMsg     = 1003 // Send message
	WSTyping      = 1004 // Typing indicator
	WSMarkRead    = 1006 // Advance read cursor
	WSHeartbeat   = 1007 // Keep presence alive

	// Pushes
	WSPushEvent     = 2001 // Server push of a fanout event
	WSKickOnlineMsg = 2002 // Kick user offline
	WSDataError     = 3001 // Data error
)

// Query parameter keys
const (
	QueryToken      = "token"
	QuerySendId     = "send_id"
	QueryPlatformId = "platform_id"
	QuerySDKType    = "sdk_type"
)
