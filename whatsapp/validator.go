package whatsapp

import (
	"strings"

	wtypes "go.mau.fi/whatsmeow/types"

	"whatsapp-api-gateway/types"
)

const (
	maxMessageLength = 4096
	// MaxMediaBytes caps uploaded media payloads.
	MaxMediaBytes = 10 * 1024 * 1024
)

// NormalizeRecipient turns a phone number or full JID into a canonical JID
// string. Bare numbers are stripped to digits and given the default user
// server.
func NormalizeRecipient(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", types.Validationf("phone number is required")
	}

	if strings.Contains(raw, "@") {
		jid, err := wtypes.ParseJID(raw)
		if err != nil || jid.User == "" {
			return "", types.Validationf("invalid recipient JID: %s", raw)
		}
		return jid.String(), nil
	}

	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	phone := digits.String()
	if len(phone) < 10 || len(phone) > 15 {
		return "", types.Validationf("invalid phone number format")
	}
	return wtypes.NewJID(phone, wtypes.DefaultUserServer).String(), nil
}

// ValidateMessage trims and bounds a text body or caption.
func ValidateMessage(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", types.Validationf("message is required")
	}
	if len(text) > maxMessageLength {
		return "", types.Validationf("message is too long (max %d characters)", maxMessageLength)
	}
	return strings.TrimSpace(text), nil
}

// ValidateCaption is like ValidateMessage but allows an empty caption.
func ValidateCaption(text string) (string, error) {
	if len(text) > maxMessageLength {
		return "", types.Validationf("caption is too long (max %d characters)", maxMessageLength)
	}
	return strings.TrimSpace(text), nil
}

var mediaKinds = map[string]types.MessageKind{
	"image":    types.KindImage,
	"video":    types.KindVideo,
	"audio":    types.KindAudio,
	"document": types.KindDocument,
}

// ValidateMediaType maps the request media type onto a tagged kind.
func ValidateMediaType(mediaType string) (types.MessageKind, error) {
	kind, ok := mediaKinds[mediaType]
	if !ok {
		return "", types.Validationf("invalid media type %q, allowed: image, video, audio, document", mediaType)
	}
	return kind, nil
}

// ValidateFileSize bounds uploaded media payloads.
func ValidateFileSize(n int) error {
	if n == 0 {
		return types.Validationf("media file is required")
	}
	if n > MaxMediaBytes {
		return types.Validationf("file size too large, maximum %dMB", MaxMediaBytes/1024/1024)
	}
	return nil
}
