package whatsapp

import (
	"strings"
	"testing"

	"whatsapp-api-gateway/types"
)

func TestNormalizeRecipient(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "bare number", in: "15551234567", want: "15551234567@s.whatsapp.net"},
		{name: "formatted number", in: "+1 (555) 123-4567", want: "15551234567@s.whatsapp.net"},
		{name: "jid passthrough", in: "15551234567@s.whatsapp.net", want: "15551234567@s.whatsapp.net"},
		{name: "group jid", in: "12036304684-1440902315@g.us", want: "12036304684-1440902315@g.us"},
		{name: "too short", in: "12345", wantErr: true},
		{name: "too long", in: "1234567890123456", wantErr: true},
		{name: "empty", in: "", wantErr: true},
		{name: "whitespace", in: "   ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeRecipient(tt.in)
			if tt.wantErr {
				if !types.IsValidation(err) {
					t.Fatalf("NormalizeRecipient(%q) error = %v, want validation error", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeRecipient(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeRecipient(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidateMessage(t *testing.T) {
	if _, err := ValidateMessage(""); !types.IsValidation(err) {
		t.Errorf("empty message error = %v, want validation error", err)
	}
	if _, err := ValidateMessage("   "); !types.IsValidation(err) {
		t.Errorf("whitespace message error = %v, want validation error", err)
	}
	if _, err := ValidateMessage(strings.Repeat("a", maxMessageLength+1)); !types.IsValidation(err) {
		t.Errorf("oversized message error = %v, want validation error", err)
	}

	got, err := ValidateMessage("  hello  ")
	if err != nil {
		t.Fatalf("ValidateMessage() error = %v", err)
	}
	if got != "hello" {
		t.Errorf("ValidateMessage() = %q, want trimmed text", got)
	}

	if _, err := ValidateMessage(strings.Repeat("a", maxMessageLength)); err != nil {
		t.Errorf("message at exact limit rejected: %v", err)
	}
}

func TestValidateCaption(t *testing.T) {
	got, err := ValidateCaption("")
	if err != nil || got != "" {
		t.Errorf("ValidateCaption(\"\") = %q, %v, want empty caption allowed", got, err)
	}
	if _, err := ValidateCaption(strings.Repeat("a", maxMessageLength+1)); !types.IsValidation(err) {
		t.Errorf("oversized caption error = %v, want validation error", err)
	}
}

func TestValidateMediaType(t *testing.T) {
	for mediaType, want := range map[string]types.MessageKind{
		"image":    types.KindImage,
		"video":    types.KindVideo,
		"audio":    types.KindAudio,
		"document": types.KindDocument,
	} {
		kind, err := ValidateMediaType(mediaType)
		if err != nil || kind != want {
			t.Errorf("ValidateMediaType(%q) = %v, %v, want %v", mediaType, kind, err, want)
		}
	}
	if _, err := ValidateMediaType("sticker"); !types.IsValidation(err) {
		t.Errorf("unsupported media type error = %v, want validation error", err)
	}
}

func TestValidateFileSize(t *testing.T) {
	if err := ValidateFileSize(0); !types.IsValidation(err) {
		t.Errorf("empty file error = %v, want validation error", err)
	}
	if err := ValidateFileSize(MaxMediaBytes); err != nil {
		t.Errorf("file at exact cap rejected: %v", err)
	}
	if err := ValidateFileSize(MaxMediaBytes + 1); !types.IsValidation(err) {
		t.Errorf("oversized file error = %v, want validation error", err)
	}
}
