// Package chat implements the chat semantics between the wire protocol and the UI.
package chat

// Events published to, and consumed from, the UI layer.
const (
	// EventMessageReceived carries a protocol.ChatMessage.
	EventMessageReceived = "MESSAGE_RECEIVED"
	// EventStatusUpdated carries the ordered []string of user names present.
	EventStatusUpdated = "STATUS_UPDATED"
	// EventActivityLogUpdated carries one activity line as a string.
	EventActivityLogUpdated = "ACTIVITYLOG_UPDATED"
	// EventMessageSent carries the text the local user typed, as a string.
	EventMessageSent = "MESSAGE_SENT"
)
