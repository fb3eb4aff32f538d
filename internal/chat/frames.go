package chat

import "jobmarket/db"

// Wire frames for the conversation channel. Outbound traffic is a
// tagged union: one history frame on connect, then a message frame per
// accepted publish.

// historyFrame is sent exactly once, immediately after a successful
// subscribe, before any live message.
type historyFrame struct {
	Type     string       `json:"type"`
	Messages []db.Message `json:"messages"`
}

const frameTypeHistory = "message_history"

// messageFrame carries one persisted message to every subscriber.
type messageFrame struct {
	Message *db.Message `json:"message"`
}

// inboundFrame is the client -> server shape: the raw message body.
type inboundFrame struct {
	Message string `json:"message"`
}
