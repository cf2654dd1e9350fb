package sdk

// Conversation kinds
const (
	ConversationKindDirect = 1 // Direct (2-party) chat
	ConversationKindGroup  = 2 // Group chat
)

// Message types
const (
	MsgTypeText   = 1
	MsgTypeImage  = 2
	MsgTypeFile   = 5
	MsgTypeSystem = 10
)

// Participant role levels
const (
	RoleLevelMember = 0
	RoleLevelAdmin  = 1
	RoleLevelOwner  = 2
)

// Platform Ids
const (
	PlatformIdUnknown = 0
	PlatformIdIOS     = 1
	PlatformIdAndroid = 2
	PlatformIdWindows = 3
	PlatformIdMacOS   = 4
	PlatformIdWeb     = 5
)

// WebSocket protocol identifiers
const (
	WSSubscribe   = 1001
	WSUnsubscribe = 1002
	WSSendMsg     = 1003
	WSTyping      = 1004
	WSMarkRead    = 1006
	WSHeartbeat   = 1007

	WSPushEvent     = 2001
	WSKickOnlineMsg = 2002
	WSDataError     = 3001
)

// SDKType is reported to the gateway on connect
const SDKType = "go"
