package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/lambtrial/internal/config"
	"github.com/mamadbah2/lambtrial/internal/domain/models"
	"github.com/mamadbah2/lambtrial/internal/service/commands"
	client "github.com/mamadbah2/lambtrial/pkg/clients/whatsapp"
)

const sendTimeout = 10 * time.Second

// ErrVerificationFailed is returned when the webhook handshake is rejected.
var ErrVerificationFailed = errors.New("webhook verification failed")

// MessagingService describes the operations the HTTP layer can perform.
type MessagingService interface {
	VerifyWebhookToken(mode, verifyToken, challenge string) (string, error)
	HandleWebhook(ctx context.Context, payload models.WebhookPayload) error
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
}

// MetaWhatsAppService is the production implementation backed by WhatsApp Cloud API.
type MetaWhatsAppService struct {
	cfg        config.WhatsAppConfig
	client     client.Client
	dispatcher commands.Dispatcher
	logger     *zap.Logger
}

// NewMetaWhatsAppService wires a new service instance.
func NewMetaWhatsAppService(cfg config.WhatsAppConfig, client client.Client, dispatcher commands.Dispatcher, logger *zap.Logger) *MetaWhatsAppService {
	svc := &MetaWhatsAppService{
		cfg:        cfg,
		client:     client,
		dispatcher: dispatcher,
		logger:     logger,
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	return svc
}

// VerifyWebhookToken validates the callback verification token.
func (s *MetaWhatsAppService) VerifyWebhookToken(mode, verifyToken, challenge string) (string, error) {
	if mode == "" || verifyToken == "" {
		return "", fmt.Errorf("%w: missing mode or verify token", ErrVerificationFailed)
	}

	if !strings.EqualFold(mode, "subscribe") {
		return "", fmt.Errorf("%w: unsupported hub.mode %s", ErrVerificationFailed, mode)
	}

	if s.cfg.VerifyToken == "" || verifyToken != s.cfg.VerifyToken {
		return "", fmt.Errorf("%w: invalid verify token", ErrVerificationFailed)
	}

	return challenge, nil
}

// HandleWebhook runs the quick-entry command carried by each inbound
// message and replies to its sender. Delivery receipts are ignored.
func (s *MetaWhatsAppService) HandleWebhook(ctx context.Context, payload models.WebhookPayload) error {
	var firstErr error

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if err := s.handleInboundMessage(ctx, msg); err != nil {
					s.logger.Error("failed to handle inbound message", zap.Error(err), zap.String("message_id", msg.ID))
					if firstErr == nil {
						firstErr = err
					}
				}
			}
		}
	}

	return firstErr
}

func (s *MetaWhatsAppService) handleInboundMessage(ctx context.Context, msg models.InboundMessage) error {
	text := extractMessageText(msg)
	if text == "" {
		s.logger.Debug("skip message without text", zap.String("type", msg.Type), zap.String("message_id", msg.ID))
		return nil
	}

	cmd := models.ParseCommand(text)
	reply, err := s.dispatcher.HandleCommand(ctx, cmd, msg.From)
	if err != nil {
		s.logger.Info("command rejected",
			zap.String("from", msg.From),
			zap.String("command", string(cmd.Type)),
			zap.Error(err))
		reply = commands.ErrorReply(err)
	} else {
		s.logger.Info("command handled",
			zap.String("from", msg.From),
			zap.String("command", string(cmd.Type)))
	}

	return s.send(ctx, msg.From, reply)
}

// SendOutbound lets operators push quick notifications via HTTP.
func (s *MetaWhatsAppService) SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error {
	return s.send(ctx, req.To, req.Message)
}

// Notify sends a text message to the configured report recipient.
func (s *MetaWhatsAppService) Notify(ctx context.Context, body string) error {
	if s.cfg.ReportRecipient == "" {
		s.logger.Debug("no report recipient configured, notification skipped")
		return nil
	}
	return s.send(ctx, s.cfg.ReportRecipient, body)
}

func (s *MetaWhatsAppService) send(ctx context.Context, to, body string) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if _, err := s.client.SendTextMessage(ctxWithTimeout, client.SendTextMessageRequest{To: to, Body: body}); err != nil {
		return fmt.Errorf("send message to %s: %w", to, err)
	}
	return nil
}

func extractMessageText(msg models.InboundMessage) string {
	if msg.Text != nil {
		return strings.TrimSpace(msg.Text.Body)
	}
	if msg.Interactive != nil && msg.Interactive.ButtonReply != nil {
		return msg.Interactive.ButtonReply.ID
	}
	return ""
}
