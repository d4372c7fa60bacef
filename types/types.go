package types

import "time"

// MessageKind tags a message's payload shape. It is determined once when a
// message enters the system, so downstream code never probes proto fields.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindVideo    MessageKind = "video"
	KindAudio    MessageKind = "audio"
	KindDocument MessageKind = "document"
	KindSticker  MessageKind = "sticker"
	KindContact  MessageKind = "contact"
	KindLocation MessageKind = "location"
	KindUnknown  MessageKind = "unknown"
)

// IsMedia reports whether messages of this kind carry a downloadable payload.
func (k MessageKind) IsMedia() bool {
	switch k {
	case KindImage, KindVideo, KindAudio, KindDocument, KindSticker:
		return true
	}
	return false
}

// OutboundMessage is one send attempt chain. It is owned by the dispatcher
// call that created it and never persisted.
type OutboundMessage struct {
	To       string // normalized JID
	Kind     MessageKind
	Text     string // body for text, caption for media
	Media    []byte
	MimeType string
	FileName string
}

// InboundMessage is a received message converted into a tagged shape at
// ingestion. MediaRef is an opaque transport handle usable with
// Transport.Download; it is nil for non-media kinds.
type InboundMessage struct {
	ID        string
	Chat      string
	Sender    string
	PushName  string
	Timestamp time.Time
	Kind      MessageKind

	Text     string
	Caption  string
	MimeType string
	FileName string

	Latitude     float64
	Longitude    float64
	LocationName string
	Address      string

	ContactName string
	VCard       string

	MediaRef any
}

// BulkItem is one entry of a bulk send request.
type BulkItem struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// BulkItemResult records the outcome of a single bulk item.
type BulkItemResult struct {
	To        string `json:"to"`
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BulkSummary aggregates a whole batch.
type BulkSummary struct {
	Total   int              `json:"total"`
	Success int              `json:"success"`
	Failed  int              `json:"failed"`
	Results []BulkItemResult `json:"-"`
}
