package voysis

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Frame types.
const (
	frameRequest      = "request"
	frameResponse     = "response"
	frameNotification = "notification"
)

// Notification types sent by the service.
const (
	NotificationVADStop             = "vad_stop"
	NotificationQueryComplete       = "query_complete"
	NotificationInternalServerError = "internal_server_error"
)

// endOfStream is sent as a single binary frame when the caller stops a
// stream manually.
const endOfStream byte = 0x04

// requestFrame is the outbound JSON envelope.
type requestFrame struct {
	Type      string         `json:"type"`
	RequestID string         `json:"requestId"`
	Method    string         `json:"method"`
	RestURI   string         `json:"restUri"`
	Headers   map[string]any `json:"headers"`
	Entity    any            `json:"entity,omitempty"`
}

// inboundFrame covers both responses and notifications.
type inboundFrame struct {
	Type             string          `json:"type"`
	RequestID        string          `json:"requestId,omitempty"`
	ResponseCode     int             `json:"responseCode,omitempty"`
	ResponseMessage  string          `json:"responseMessage,omitempty"`
	NotificationType string          `json:"notificationType,omitempty"`
	Entity           json.RawMessage `json:"entity,omitempty"`
}

func (f *inboundFrame) ok() bool {
	return f.ResponseCode >= 200 && f.ResponseCode < 300
}

func encodeRequest(f *requestFrame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("voysis: encode request %s %s: %w", f.Method, f.RestURI, err)
	}
	return data, nil
}

func decodeFrame(data []byte) (*inboundFrame, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("voysis: decode frame: %w", err)
	}
	return &f, nil
}

// truncate shortens frame dumps for debug logging.
func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
