package notify

import (
	"encoding/json"
	"time"
)

// ToastMessage is the wire form of a toast published to the broker.
type ToastMessage struct {
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func NewToastMessage(t Toast) *ToastMessage {
	ts := t.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return &ToastMessage{
		Level:     t.Level,
		Message:   t.Message,
		Timestamp: ts,
	}
}

func (m *ToastMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func (m *ToastMessage) Toast() Toast {
	return Toast{Level: m.Level, Message: m.Message, Time: m.Timestamp}
}

func ToastMessageFromJSON(data []byte) (*ToastMessage, error) {
	var msg ToastMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
