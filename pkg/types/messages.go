package types

const MessageTypeState = "state"

// ServerMessage is the only frame sent on the push channel:
//
//	{"type": "state", "payload": StateSnapshot}
type ServerMessage struct {
	Type    string         `json:"type"`
	Payload *StateSnapshot `json:"payload,omitempty"`
}
