package whatsapp

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	wtypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"whatsapp-api-gateway/types"
)

// MeowTransport adapts a whatsmeow client to the Transport interface.
// whatsmeow callbacks are converted into typed events on a buffered channel;
// the handler never blocks on a slow consumer.
type MeowTransport struct {
	client      *whatsmeow.Client
	container   *sqlstore.Container
	sessionPath string
	events      chan Event
	log         zerolog.Logger
}

func NewMeowTransport(ctx context.Context, dsn, sessionPath string, log zerolog.Logger) (*MeowTransport, error) {
	waLogger := waLog.Zerolog(log.With().Str("component", "whatsmeow").Logger())

	container, err := sqlstore.New(ctx, "sqlite", dsn, waLogger)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		if !strings.Contains(err.Error(), "no device") {
			return nil, fmt.Errorf("get device: %w", err)
		}
		deviceStore = container.NewDevice()
	}
	if deviceStore == nil {
		deviceStore = container.NewDevice()
	}

	client := whatsmeow.NewClient(deviceStore, waLogger)
	// Reconnects are owned by the connection manager.
	client.EnableAutoReconnect = false

	t := &MeowTransport{
		client:      client,
		container:   container,
		sessionPath: sessionPath,
		events:      make(chan Event, 64),
		log:         log.With().Str("component", "transport").Logger(),
	}
	client.AddEventHandler(t.handleEvent)
	return t, nil
}

func (t *MeowTransport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.client.Connect()
}

func (t *MeowTransport) Disconnect() {
	t.client.Disconnect()
}

func (t *MeowTransport) Events() <-chan Event { return t.events }

func (t *MeowTransport) SessionPath() string { return t.sessionPath }

func (t *MeowTransport) emit(evt Event) {
	select {
	case t.events <- evt:
	default:
		t.log.Warn().Msg("event channel full, dropping transport event")
	}
}

func (t *MeowTransport) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.QR:
		if len(v.Codes) == 0 {
			return
		}
		t.printQR(v.Codes[0])
		t.emit(ChallengeEvent{Code: v.Codes[0]})
	case *events.Connected:
		t.emit(OpenEvent{})
	case *events.LoggedOut:
		t.emit(CloseEvent{LoggedOut: true, Cause: fmt.Sprintf("logged out (%v)", v.Reason)})
	case *events.Disconnected:
		t.emit(CloseEvent{Cause: "disconnected"})
	case *events.StreamReplaced:
		t.emit(CloseEvent{Cause: "stream replaced"})
	case *events.ConnectFailure:
		t.emit(CloseEvent{Cause: fmt.Sprintf("connect failure (%v)", v.Reason)})
	case *events.Message:
		if v.Info.IsFromMe {
			return
		}
		t.emit(InboundEvent{Message: convertInbound(v)})
	}
}

func (t *MeowTransport) printQR(code string) {
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		t.log.Error().Err(err).Msg("failed to render QR code")
		return
	}
	fmt.Printf("\nScan this QR code with your WhatsApp mobile app:\n%s\n", qr.ToSmallString(false))
}

// convertInbound determines the message kind once at ingestion and carries
// the downloadable proto along as an opaque ref.
func convertInbound(evt *events.Message) types.InboundMessage {
	in := types.InboundMessage{
		ID:        evt.Info.ID,
		Chat:      evt.Info.Chat.String(),
		Sender:    evt.Info.Sender.String(),
		PushName:  evt.Info.PushName,
		Timestamp: evt.Info.Timestamp,
		Kind:      types.KindUnknown,
	}

	m := evt.Message
	switch {
	case m.GetConversation() != "":
		in.Kind = types.KindText
		in.Text = m.GetConversation()
	case m.GetExtendedTextMessage().GetText() != "":
		in.Kind = types.KindText
		in.Text = m.GetExtendedTextMessage().GetText()
	case m.GetImageMessage() != nil:
		img := m.GetImageMessage()
		in.Kind = types.KindImage
		in.Caption = img.GetCaption()
		in.MimeType = img.GetMimetype()
		in.MediaRef = img
	case m.GetVideoMessage() != nil:
		vid := m.GetVideoMessage()
		in.Kind = types.KindVideo
		in.Caption = vid.GetCaption()
		in.MimeType = vid.GetMimetype()
		in.MediaRef = vid
	case m.GetAudioMessage() != nil:
		aud := m.GetAudioMessage()
		in.Kind = types.KindAudio
		in.MimeType = aud.GetMimetype()
		in.MediaRef = aud
	case m.GetDocumentMessage() != nil:
		doc := m.GetDocumentMessage()
		in.Kind = types.KindDocument
		in.FileName = doc.GetFileName()
		in.MimeType = doc.GetMimetype()
		in.MediaRef = doc
	case m.GetStickerMessage() != nil:
		stk := m.GetStickerMessage()
		in.Kind = types.KindSticker
		in.MimeType = stk.GetMimetype()
		in.MediaRef = stk
	case m.GetContactMessage() != nil:
		in.Kind = types.KindContact
		in.ContactName = m.GetContactMessage().GetDisplayName()
		in.VCard = m.GetContactMessage().GetVcard()
	case m.GetLocationMessage() != nil:
		loc := m.GetLocationMessage()
		in.Kind = types.KindLocation
		in.Latitude = loc.GetDegreesLatitude()
		in.Longitude = loc.GetDegreesLongitude()
		in.LocationName = loc.GetName()
		in.Address = loc.GetAddress()
	}
	return in
}

func (t *MeowTransport) Send(ctx context.Context, msg types.OutboundMessage) (string, error) {
	jid, err := wtypes.ParseJID(msg.To)
	if err != nil {
		return "", fmt.Errorf("parse recipient: %w", err)
	}

	var wmsg *waE2E.Message
	if msg.Kind == types.KindText {
		wmsg = &waE2E.Message{Conversation: proto.String(msg.Text)}
	} else {
		wmsg, err = t.buildMediaMessage(ctx, msg)
		if err != nil {
			return "", err
		}
	}

	resp, err := t.client.SendMessage(ctx, jid, wmsg)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

var uploadTypes = map[types.MessageKind]whatsmeow.MediaType{
	types.KindImage:    whatsmeow.MediaImage,
	types.KindVideo:    whatsmeow.MediaVideo,
	types.KindAudio:    whatsmeow.MediaAudio,
	types.KindDocument: whatsmeow.MediaDocument,
}

func (t *MeowTransport) buildMediaMessage(ctx context.Context, msg types.OutboundMessage) (*waE2E.Message, error) {
	mediaType, ok := uploadTypes[msg.Kind]
	if !ok {
		return nil, fmt.Errorf("unsupported media kind %q", msg.Kind)
	}

	uploaded, err := t.client.Upload(ctx, msg.Media, mediaType)
	if err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}

	switch msg.Kind {
	case types.KindImage:
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(msg.Text),
			Mimetype:      proto.String(msg.MimeType),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}}, nil
	case types.KindVideo:
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption:       proto.String(msg.Text),
			Mimetype:      proto.String(msg.MimeType),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}}, nil
	case types.KindAudio:
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			Mimetype:      proto.String(msg.MimeType),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}}, nil
	default:
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			FileName:      proto.String(msg.FileName),
			Caption:       proto.String(msg.Text),
			Mimetype:      proto.String(msg.MimeType),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}}, nil
	}
}

func (t *MeowTransport) Download(ctx context.Context, msg types.InboundMessage) ([]byte, error) {
	ref, ok := msg.MediaRef.(whatsmeow.DownloadableMessage)
	if !ok {
		return nil, fmt.Errorf("message %s has no downloadable media", msg.ID)
	}
	return t.client.Download(ctx, ref)
}

// Logout ends the session; whatsmeow removes the device credentials from
// the sqlstore as part of the logout flow.
func (t *MeowTransport) Logout(ctx context.Context) error {
	return t.client.Logout(ctx)
}

// Close disconnects and releases the session store.
func (t *MeowTransport) Close() error {
	t.client.Disconnect()
	return t.container.Close()
}
