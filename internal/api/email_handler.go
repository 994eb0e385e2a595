package api

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thetact/tact-backend/internal/notify"
	"github.com/thetact/tact-backend/pkg/mailer"
)

const (
	attachmentTimeout  = 10 * time.Second
	maxAttachmentBytes = 15 << 20
	defaultAttachment  = "Report.pdf"
)

// EmailHandler sends ad hoc emails composed by the client.
type EmailHandler struct {
	mail   notify.MailSender
	http   *http.Client
	logger *zap.Logger
}

// NewEmailHandler creates a new EmailHandler. httpClient may be nil.
func NewEmailHandler(mail notify.MailSender, httpClient *http.Client, logger *zap.Logger) *EmailHandler {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: attachmentTimeout}
	}
	return &EmailHandler{mail: mail, http: httpClient, logger: logger}
}

// SendEmail handles POST /send-email. A failed attachment download is logged and the email is sent without it.
func (h *EmailHandler) SendEmail(c *gin.Context) {
	if h.mail == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "Email is not configured"})
		return
	}
	var req SendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	msg := mailer.Message{
		To:      []string{req.To},
		Subject: req.Subject,
		Text:    req.Body,
		HTML:    strings.ReplaceAll(html.EscapeString(req.Body), "\n", "<br>"),
	}
	if url := strings.TrimSpace(req.AttachmentURL); url != "" {
		attachment, err := h.fetchAttachment(c.Request.Context(), url)
		if err != nil {
			h.logger.Warn("Attachment failed, sending email without it", zap.String("attachment_url", url), zap.Error(err))
		} else {
			msg.Attachments = append(msg.Attachments, *attachment)
		}
	}

	if err := h.mail.Send(c.Request.Context(), msg); err != nil {
		h.logger.Error("Failed to send email", zap.String("to", req.To), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to send email", Details: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (h *EmailHandler) fetchAttachment(ctx context.Context, url string) (*mailer.Attachment, error) {
	ctx, cancel := context.WithTimeout(ctx, attachmentTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxAttachmentBytes {
		return nil, fmt.Errorf("attachment exceeds %d bytes", maxAttachmentBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = "application/pdf"
	}
	filename := path.Base(req.URL.Path)
	if filename == "" || filename == "/" || filename == "." || !strings.Contains(filename, ".") {
		filename = defaultAttachment
	}
	return &mailer.Attachment{Filename: filename, ContentType: contentType, Data: data}, nil
}
