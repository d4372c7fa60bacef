package server

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/skip2/go-qrcode"

	"whatsapp-api-gateway/metrics"
	"whatsapp-api-gateway/types"
	"whatsapp-api-gateway/whatsapp"
)

func fail(c echo.Context, code int, message string) error {
	return c.JSON(code, map[string]any{"success": false, "message": message})
}

// sendError maps dispatch errors onto HTTP statuses per the error taxonomy.
func sendError(c echo.Context, err error) error {
	var ste *types.SendTimeoutError
	switch {
	case types.IsValidation(err):
		return fail(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &ste):
		return fail(c, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, types.ErrNotConnected):
		return fail(c, http.StatusServiceUnavailable, err.Error())
	default:
		return fail(c, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	st := s.conn.Status()
	return c.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"status":    "ok",
		"uptime":    int64(time.Since(s.startTime).Seconds()),
		"connected": st.State == whatsapp.StateConnected,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	st := s.conn.Status()
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"isConnected": st.State == whatsapp.StateConnected,
			"state":       st.State.String(),
			"qrCode":      st.Challenge,
			"sessionPath": st.SessionPath,
		},
	})
}

func (s *Server) handleQR(c echo.Context) error {
	s.stats.Increment(metrics.QRCodeRequests)

	st := s.conn.Status()
	switch {
	case st.Challenge != "":
		png, err := qrcode.Encode(st.Challenge, qrcode.Medium, 256)
		if err != nil {
			return fail(c, http.StatusInternalServerError, "failed to render QR code")
		}
		return c.JSON(http.StatusOK, map[string]any{
			"success": true,
			"qrCode":  st.Challenge,
			"qrImage": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		})
	case st.State == whatsapp.StateConnected:
		return c.JSON(http.StatusOK, map[string]any{
			"success": false,
			"message": "WhatsApp is already connected",
		})
	default:
		return c.JSON(http.StatusOK, map[string]any{
			"success": false,
			"message": "QR code not available, please restart the service",
		})
	}
}

type sendMessageRequest struct {
	To      string `json:"to" validate:"required"`
	Message string `json:"message" validate:"required"`
}

func (s *Server) handleSendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return fail(c, http.StatusBadRequest, "fields to and message are required")
	}

	to, err := whatsapp.NormalizeRecipient(req.To)
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	text, err := whatsapp.ValidateMessage(req.Message)
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	id, err := s.send.Send(c.Request().Context(), types.OutboundMessage{
		To:   to,
		Kind: types.KindText,
		Text: text,
	})
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"messageId": id,
		"message":   "Message sent successfully",
	})
}

var defaultMimeTypes = map[types.MessageKind]string{
	types.KindImage:    "image/jpeg",
	types.KindVideo:    "video/mp4",
	types.KindAudio:    "audio/mp4",
	types.KindDocument: "application/pdf",
}

func (s *Server) handleSendMedia(c echo.Context) error {
	to, err := whatsapp.NormalizeRecipient(c.FormValue("to"))
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	kind, err := whatsapp.ValidateMediaType(c.FormValue("mediaType"))
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	caption, err := whatsapp.ValidateCaption(c.FormValue("caption"))
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	fileHeader, err := c.FormFile("media")
	if err != nil {
		return fail(c, http.StatusBadRequest, "media file is required")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return fail(c, http.StatusBadRequest, "could not read media file")
	}
	defer file.Close()
	payload, err := io.ReadAll(file)
	if err != nil {
		return fail(c, http.StatusBadRequest, "could not read media file")
	}
	if err := whatsapp.ValidateFileSize(len(payload)); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = defaultMimeTypes[kind]
	}

	id, err := s.send.Send(c.Request().Context(), types.OutboundMessage{
		To:       to,
		Kind:     kind,
		Text:     caption,
		Media:    payload,
		MimeType: mimeType,
		FileName: c.FormValue("fileName"),
	})
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"messageId": id,
		"message":   "Media message sent successfully",
	})
}

type sendBulkRequest struct {
	Messages []types.BulkItem `json:"messages"`
}

func (s *Server) handleSendBulk(c echo.Context) error {
	var req sendBulkRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	summary, err := s.bulk.SendBulk(c.Request().Context(), req.Messages)
	if err != nil {
		if types.IsValidation(err) {
			return fail(c, http.StatusBadRequest, err.Error())
		}
		return fail(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Bulk messages processed",
		"summary": summary,
		"results": summary.Results,
	})
}

func (s *Server) handleLogout(c echo.Context) error {
	if err := s.conn.Logout(c.Request().Context()); err != nil {
		if errors.Is(err, types.ErrNoSession) {
			return fail(c, http.StatusBadRequest, err.Error())
		}
		return fail(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (s *Server) handleMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleMetricsReset(c echo.Context) error {
	s.stats.Reset()
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleWebhookStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"enabled":    s.hooks.Enabled(),
			"webhookUrl": s.hooks.URL(),
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		},
	})
}

type webhookTestRequest struct {
	EventType string         `json:"eventType"`
	Data      map[string]any `json:"data"`
}

func (s *Server) handleWebhookTest(c echo.Context) error {
	var req webhookTestRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.EventType == "" {
		req.EventType = "test"
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}
	req.Data["test"] = true
	req.Data["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	result := s.hooks.Deliver(c.Request().Context(), req.EventType, req.Data)
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Webhook test completed",
		"result":  result,
	})
}

func (s *Server) handleWebhookSend(c echo.Context) error {
	var req webhookTestRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.EventType == "" {
		return fail(c, http.StatusBadRequest, "eventType is required")
	}

	result := s.hooks.Deliver(c.Request().Context(), req.EventType, req.Data)
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Custom webhook sent",
		"result":  result,
	})
}
