package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"classifieds/internal/authz"
	"classifieds/internal/middleware"
	"classifieds/internal/models"
	"classifieds/internal/notifications"
	"classifieds/internal/observability"
	"classifieds/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

const (
	MaxMessageLength = 5000

	defaultInboxLimit = 20
	maxInboxLimit     = 100
	previewLength     = 100
)

// EventPublisher delivers a notification to a user. *notifications.Notifier implements it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, userID uint, ev notifications.Event) error
}

type MessageService struct {
	products  repository.ProductRepository
	messages  repository.MessageRepository
	guard     *authz.Guard
	publisher EventPublisher
}

type InboxResult struct {
	Messages []models.Message `json:"messages"`
	Unread   int64            `json:"unread"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

func NewMessageService(
	products repository.ProductRepository,
	messages repository.MessageRepository,
	guard *authz.Guard,
	publisher EventPublisher,
) *MessageService {
	return &MessageService{
		products:  products,
		messages:  messages,
		guard:     guard,
		publisher: publisher,
	}
}

// Send stores a message from who to the seller of productID and notifies the seller.
func (s *MessageService) Send(ctx context.Context, who authz.Identity, productID uint, content string) (message *models.Message, err error) {
	ctx, end := observability.StartSpan(ctx, "messaging", "Send",
		attribute.Int64("product.id", int64(productID)),
	)
	defer func() { end(err) }()

	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	switch s.guard.Authorize(who, authz.ActionMessage, &authz.Resource{SellerID: product.SellerID}) {
	case authz.Allow:
	case authz.DenyUnauthenticated:
		return nil, models.NewUnauthorizedError("Login required")
	case authz.DenySelfMessage:
		return nil, models.NewForbiddenError("You cannot send a message about your own product")
	default:
		return nil, models.NewNotFoundError("Product", productID)
	}

	content = strings.TrimSpace(content)
	switch {
	case content == "":
		return nil, models.NewFieldValidationError(map[string]string{"content": "This field is required."})
	case utf8.RuneCountInString(content) > MaxMessageLength:
		return nil, models.NewFieldValidationError(map[string]string{"content": "Ensure this value has at most 5000 characters."})
	}

	message = &models.Message{
		ProductID:  product.ID,
		SenderID:   who.UserID,
		ReceiverID: product.SellerID,
		Content:    content,
	}
	if err := s.messages.Create(ctx, message); err != nil {
		return nil, err
	}
	observability.MessagesSent.Inc()

	s.notify(ctx, message)
	return message, nil
}

// notify is best effort: a failed publish never fails the send.
func (s *MessageService) notify(ctx context.Context, message *models.Message) {
	if s.publisher == nil {
		return
	}
	preview := message.Content
	if utf8.RuneCountInString(preview) > previewLength {
		preview = string([]rune(preview)[:previewLength])
	}
	ev := notifications.Event{
		Type: notifications.EventMessageReceived,
		Payload: notifications.MessageReceivedPayload{
			MessageID: message.ID,
			ProductID: message.ProductID,
			SenderID:  message.SenderID,
			Preview:   preview,
		},
	}
	if err := s.publisher.PublishEvent(ctx, message.ReceiverID, ev); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish message notification",
			"message_id", message.ID, "receiver_id", message.ReceiverID, "error", err)
	}
}

// Inbox lists the messages received by who, newest first.
func (s *MessageService) Inbox(ctx context.Context, who authz.Identity, limit, offset int) (*InboxResult, error) {
	if !who.Authenticated() {
		return nil, models.NewUnauthorizedError("Login required")
	}
	if limit <= 0 {
		limit = defaultInboxLimit
	}
	if limit > maxInboxLimit {
		limit = maxInboxLimit
	}
	if offset < 0 {
		offset = 0
	}

	messages, err := s.messages.ListReceived(ctx, who.UserID, limit, offset)
	if err != nil {
		return nil, err
	}
	unread, err := s.messages.CountUnread(ctx, who.UserID)
	if err != nil {
		return nil, err
	}
	return &InboxResult{Messages: messages, Unread: unread, Limit: limit, Offset: offset}, nil
}

// MarkRead flags a received message as read. Messages sent to others are not found.
func (s *MessageService) MarkRead(ctx context.Context, who authz.Identity, id uint) error {
	if !who.Authenticated() {
		return models.NewUnauthorizedError("Login required")
	}
	return s.messages.MarkRead(ctx, id, who.UserID)
}
