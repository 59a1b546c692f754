package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ds124wfegd/spa-booking/config"
	"github.com/ds124wfegd/spa-booking/internal/database"
	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/ds124wfegd/spa-booking/internal/moderation"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultMessageLimit = 100

type chatService struct {
	chatRepo    database.ChatRepository
	accountRepo database.AccountRepository
	notifier    Notifier
	pusher      Pusher
	cfg         config.ChatConfig
	now         Clock
}

// NewChatService is the only writer of chat messages.
func NewChatService(
	chatRepo database.ChatRepository,
	accountRepo database.AccountRepository,
	notifier Notifier,
	pusher Pusher,
	cfg config.ChatConfig,
	clock Clock,
) ChatService {
	return &chatService{
		chatRepo:    chatRepo,
		accountRepo: accountRepo,
		notifier:    notifier,
		pusher:      pusher,
		cfg:         cfg,
		now:         clock,
	}
}

func (s *chatService) SendMessage(ctx context.Context, req *SendMessageRequest) (*entity.ChatMessage, error) {
	content := strings.TrimSpace(req.Content)
	switch {
	case req.RoomID == "":
		return nil, entity.Validation("room_id is required")
	case req.SenderID == "":
		return nil, entity.Validation("sender_id is required")
	case !req.SenderType.Valid():
		return nil, entity.Validation("sender_type must be customer, therapist or place")
	case content == "":
		return nil, entity.Validation("content is required")
	case s.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(content) > s.cfg.MaxMessageLength:
		return nil, entity.Validation("content exceeds %d characters", s.cfg.MaxMessageLength)
	}

	room, err := s.chatRepo.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	if !senderBelongs(room, req.SenderID, req.SenderType) {
		return nil, entity.ErrNotRoomMember
	}

	account, err := s.accountRepo.Get(ctx, req.SenderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sender account: %w", err)
	}
	if account.Restricted {
		return nil, entity.ErrAccountRestricted
	}

	if violations := moderation.Detect(content); len(violations) > 0 {
		return nil, s.recordViolation(ctx, room, req.SenderID, content, violations)
	}

	msg := &entity.ChatMessage{
		ID:         uuid.NewString(),
		RoomID:     room.ID,
		SenderID:   req.SenderID,
		SenderType: req.SenderType,
		Content:    content,
		CreatedAt:  s.now(),
	}
	if _, err := s.chatRepo.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	s.broadcast(room, msg)
	s.notifyRecipient(ctx, room, msg)
	return msg, nil
}

const previewLength = 80

// notifyRecipient leaves an offline trail for the other participant.
func (s *chatService) notifyRecipient(ctx context.Context, room *entity.ChatRoom, msg *entity.ChatMessage) {
	recipient := room.ProviderID
	if msg.SenderID == room.ProviderID {
		recipient = room.CustomerID
	}

	preview := msg.Content
	if r := []rune(preview); len(r) > previewLength {
		preview = string(r[:previewLength]) + "..."
	}

	s.notifier.Notify(ctx, &entity.Notification{
		UserID:    recipient,
		Type:      entity.NotifyChatMessage,
		Title:     "New message",
		Message:   preview,
		BookingID: room.BookingID,
		Payload:   map[string]interface{}{"room_id": room.ID, "message_id": msg.ID},
	})
}

func senderBelongs(room *entity.ChatRoom, senderID string, senderType entity.SenderType) bool {
	if senderType == entity.SenderCustomer {
		return senderID == room.CustomerID
	}
	return senderID == room.ProviderID
}

// recordViolation counts the violation, keeps a redacted audit copy and
// restricts the sender once the threshold is reached.
func (s *chatService) recordViolation(ctx context.Context, room *entity.ChatRoom, senderID, content string, types []entity.ViolationType) error {
	now := s.now()

	count, err := s.accountRepo.IncrementViolations(ctx, senderID, now)
	if err != nil {
		return fmt.Errorf("failed to record violation: %w", err)
	}

	audit := &entity.ChatViolation{
		ID:               uuid.NewString(),
		RoomID:           room.ID,
		SenderID:         senderID,
		Types:            types,
		SanitizedContent: moderation.Redact(content),
		ViolationNumber:  count,
		CreatedAt:        now,
	}
	if err := s.chatRepo.InsertViolation(ctx, audit); err != nil {
		return fmt.Errorf("failed to store violation audit: %w", err)
	}

	log := logrus.WithFields(logrus.Fields{
		"room_id":    room.ID,
		"sender_id":  senderID,
		"violations": types,
		"count":      count,
	})
	log.Warn("chat message blocked")

	if s.cfg.RestrictThreshold > 0 && count >= s.cfg.RestrictThreshold {
		restricted, err := s.accountRepo.Restrict(ctx, senderID, entity.RestrictionChatViolations, now)
		if err != nil {
			return fmt.Errorf("failed to restrict account: %w", err)
		}
		if restricted {
			log.Warn("account restricted for chat violations")
			s.notifier.Notify(ctx, &entity.Notification{
				UserID:    senderID,
				Type:      entity.NotifyAccountRestricted,
				Title:     "Account restricted",
				Message:   fmt.Sprintf("Your account was restricted after %d attempts to share contact information. Contact support to restore it.", count),
				BookingID: room.BookingID,
			})
		}
		return entity.ErrAccountRestricted.WithMessage(
			"account restricted after %d violations: sharing contact information is not allowed", count)
	}

	msg := fmt.Sprintf("message blocked: sharing contact information is not allowed (violation %d of %d)", count, s.cfg.RestrictThreshold)
	if s.cfg.WarningThreshold > 0 && count >= s.cfg.WarningThreshold {
		msg = fmt.Sprintf("final warning: your account will be restricted after %d violations (violation %d)", s.cfg.RestrictThreshold, count)
	}
	return entity.ErrContentViolation.WithMessage("%s", msg)
}

// PostSystemMessage skips scanning. The dedup key makes it exactly once.
func (s *chatService) PostSystemMessage(ctx context.Context, roomID, dedupKey, content string) (*entity.ChatMessage, bool, error) {
	if roomID == "" || dedupKey == "" || strings.TrimSpace(content) == "" {
		return nil, false, entity.Validation("room_id, dedup key and content are required")
	}

	room, err := s.chatRepo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, false, err
	}

	msg := &entity.ChatMessage{
		ID:              uuid.NewString(),
		RoomID:          room.ID,
		SenderID:        string(entity.SenderSystem),
		SenderType:      entity.SenderSystem,
		Content:         content,
		IsSystemMessage: true,
		DedupKey:        dedupKey,
		CreatedAt:       s.now(),
	}
	inserted, err := s.chatRepo.InsertMessage(ctx, msg)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		return nil, false, nil
	}

	s.broadcast(room, msg)
	return msg, true, nil
}

func (s *chatService) ListMessages(ctx context.Context, roomID, userID string, limit int) ([]*entity.ChatMessage, error) {
	if roomID == "" {
		return nil, entity.Validation("room_id is required")
	}
	if limit <= 0 || limit > defaultMessageLimit {
		limit = defaultMessageLimit
	}

	room, err := s.chatRepo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if userID != "" && !room.HasMember(userID) {
		return nil, entity.ErrNotRoomMember
	}
	return s.chatRepo.ListMessages(ctx, roomID, limit)
}

// ClearRestriction is the manual clearance: it lifts any restriction and
// resets the violation counter.
func (s *chatService) ClearRestriction(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, entity.Validation("user_id is required")
	}

	cleared, err := s.accountRepo.ClearRestriction(ctx, userID, "", true, s.now())
	if err != nil {
		return false, err
	}
	if cleared {
		logrus.WithField("user_id", userID).Info("account restriction cleared")
	}
	return cleared, nil
}

func (s *chatService) broadcast(room *entity.ChatRoom, msg *entity.ChatMessage) {
	if s.pusher == nil {
		return
	}
	s.pusher.SendToUser(room.CustomerID, "chat_message", msg)
	s.pusher.SendToUser(room.ProviderID, "chat_message", msg)
}
