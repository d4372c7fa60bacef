package webhook

import (
	"context"
	"time"

	"whatsapp-api-gateway/types"
)

// Event types emitted by the gateway.
const (
	EventConnectionStatus = "connection.status"
	EventMessageReceived  = "message.received"
	EventMessageSent      = "message.sent"
	EventErrorOccurred    = "error.occurred"
)

// ConnectionStatus emits a connection.status event.
func (d *Deliverer) ConnectionStatus(connected bool, challenge string) {
	data := map[string]any{
		"isConnected": connected,
		"timestamp":   d.now().UTC().Format(time.RFC3339),
	}
	if challenge != "" {
		data["qrCode"] = challenge
	}
	d.emit(EventConnectionStatus, data)
}

// MessageReceived emits a message.received event, downloading and storing
// the attachment for media kinds.
func (d *Deliverer) MessageReceived(msg types.InboundMessage) {
	d.pool.submit(func() {
		d.Deliver(context.Background(), EventMessageReceived, d.buildReceived(context.Background(), msg))
	})
}

func (d *Deliverer) buildReceived(ctx context.Context, msg types.InboundMessage) map[string]any {
	data := map[string]any{
		"messageId":   msg.ID,
		"from":        msg.Chat,
		"timestamp":   msg.Timestamp.UTC().Format(time.RFC3339),
		"messageType": string(msg.Kind),
		"content":     inboundContent(msg),
		"sender": map[string]any{
			"jid":      msg.Sender,
			"pushName": orUnknown(msg.PushName),
		},
	}

	if msg.Kind.IsMedia() && msg.MediaRef != nil && d.store != nil && d.downloader != nil {
		if artifact, err := d.fetchMedia(ctx, msg); err != nil {
			d.log.Error().Err(err).Str("messageId", msg.ID).Msg("failed to fetch inbound media")
		} else {
			data["media"] = artifact
		}
	}
	return data
}

func (d *Deliverer) fetchMedia(ctx context.Context, msg types.InboundMessage) (any, error) {
	if artifact, ok := d.store.Cached(msg.ID); ok {
		return artifact, nil
	}
	payload, err := d.downloader.Download(ctx, msg)
	if err != nil {
		return nil, err
	}
	return d.store.Save(msg.Kind, msg.ID, payload, msg.MimeType)
}

func inboundContent(msg types.InboundMessage) map[string]any {
	switch msg.Kind {
	case types.KindText:
		return map[string]any{"text": msg.Text}
	case types.KindImage, types.KindVideo:
		return map[string]any{"caption": msg.Caption, "mimetype": msg.MimeType}
	case types.KindAudio, types.KindSticker:
		return map[string]any{"mimetype": msg.MimeType}
	case types.KindDocument:
		return map[string]any{"fileName": msg.FileName, "mimetype": msg.MimeType}
	case types.KindContact:
		return map[string]any{"displayName": msg.ContactName, "vcard": msg.VCard}
	case types.KindLocation:
		return map[string]any{
			"latitude":  msg.Latitude,
			"longitude": msg.Longitude,
			"name":      msg.LocationName,
			"address":   msg.Address,
		}
	}
	return map[string]any{}
}

// MessageSent emits a message.sent event.
func (d *Deliverer) MessageSent(messageID, to string, kind types.MessageKind, content map[string]any) {
	d.emit(EventMessageSent, map[string]any{
		"messageId":   messageID,
		"to":          to,
		"messageType": string(kind),
		"content":     content,
		"timestamp":   d.now().UTC().Format(time.RFC3339),
	})
}

// ErrorOccurred emits an error.occurred event.
func (d *Deliverer) ErrorOccurred(kind, message string, context map[string]any) {
	d.emit(EventErrorOccurred, map[string]any{
		"errorType":    kind,
		"errorMessage": message,
		"context":      context,
		"timestamp":    d.now().UTC().Format(time.RFC3339),
	})
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
