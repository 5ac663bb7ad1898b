package model

// WebSocket message types
const (
	WSMessageTypeComplete = "complete"
	WSMessageTypeFailed   = "failed"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSStatusMessage is pushed to subscribers when a job reaches a terminal state
type WSStatusMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Status    *StatusResponse `json:"status"`
}
