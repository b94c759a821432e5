package realtime

import (
	"encoding/json"
	"fmt"
)

// Server-to-client event names.
const (
	// EventOnlineUsers carries the current list of registered user ids.
	EventOnlineUsers = "getOnlineUsers"

	// EventNewMessage carries a persisted message to its receiver.
	EventNewMessage = "newMessage"
)

// Frame is the JSON envelope written to clients, one per WebSocket text message.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Encode marshals an event and its payload into a wire frame.
func Encode(event string, payload any) ([]byte, error) {
	b, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", event, err)
	}
	return b, nil
}
