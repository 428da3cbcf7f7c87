package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vedran77/duet/internal/domain"
	"github.com/vedran77/duet/internal/metrics"
	"github.com/vedran77/duet/internal/repository"
)

// DeliveryTarget says where a persisted message should be pushed.
type DeliveryTarget struct {
	ReceiverID domain.UserID
	// RoomID, when set, adds the sockets joined to that room.
	RoomID string
	// ExcludeSocket is the socket a socket-native send came from.
	ExcludeSocket string
}

// Notifier pushes persisted messages to live sockets.
type Notifier interface {
	NotifyNewMessage(msg *domain.Message, target DeliveryTarget) domain.DeliveryReport
}

type SendInput struct {
	ReceiverID   domain.UserID
	Body         string
	Upload       *Upload
	RoomID       string
	OriginSocket string
}

type SendResult struct {
	Message  *domain.Message `json:"message"`
	Delivery domain.Delivery `json:"delivery"`
}

type MessageListResponse struct {
	Messages []domain.Message `json:"messages"`
}

// MessageService runs every send through one flow: gate, resolve attachment,
// append, dispatch. HTTP and socket sends both land here.
type MessageService struct {
	messageRepo  repository.MessageRepository
	userRepo     repository.UserRepository
	auth         *AuthService
	attachments  *AttachmentService
	storeTimeout time.Duration
	log          zerolog.Logger

	notifier   Notifier
	limiter    repository.RateLimitRepository
	rateLimit  int64
	rateWindow time.Duration
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	auth *AuthService,
	attachments *AttachmentService,
	storeTimeout time.Duration,
	log zerolog.Logger,
) *MessageService {
	return &MessageService{
		messageRepo:  messageRepo,
		userRepo:     userRepo,
		auth:         auth,
		attachments:  attachments,
		storeTimeout: storeTimeout,
		log:          log.With().Str("component", "messages").Logger(),
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *MessageService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetRateLimiter caps sends per sender to limit per window.
func (s *MessageService) SetRateLimiter(limiter repository.RateLimitRepository, limit int64, window time.Duration) {
	s.limiter = limiter
	s.rateLimit = limit
	s.rateWindow = window
}

func (s *MessageService) Send(ctx context.Context, identity domain.Identity, input SendInput) (res *SendResult, err error) {
	defer func() {
		if err != nil {
			metrics.SendFailures.WithLabelValues(Code(err)).Inc()
		}
	}()

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	sender, err := s.auth.AuthorizeSend(storeCtx, identity)
	if err != nil {
		return nil, err
	}

	body := input.Body
	if strings.TrimSpace(body) == "" {
		body = ""
	}
	if body == "" && input.Upload == nil {
		return nil, ErrEmptyPayload
	}

	if input.ReceiverID == sender.ID {
		return nil, ErrCannotMessageSelf
	}
	if input.RoomID != "" && input.RoomID != domain.ConversationRoom(sender.ID, input.ReceiverID) {
		return nil, fmt.Errorf("%w: room %s is not this conversation", ErrForbidden, input.RoomID)
	}

	if !input.ReceiverID.Valid() {
		return nil, fmt.Errorf("%w: receiver %s", ErrNotFound, input.ReceiverID)
	}
	receiver, err := s.userRepo.GetByID(storeCtx, input.ReceiverID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading receiver: %v", ErrStorageUnavailable, err)
	}
	if receiver == nil {
		return nil, fmt.Errorf("%w: receiver %s", ErrNotFound, input.ReceiverID)
	}

	counted, err := s.checkRateLimit(storeCtx, sender.ID)
	if err != nil {
		return nil, err
	}
	if counted {
		// Only persisted messages use up the sender's quota.
		defer func() {
			if err != nil {
				s.refundRateLimit(ctx, sender.ID)
			}
		}()
	}

	var att *domain.Attachment
	if input.Upload != nil {
		att, err = s.attachments.Store(storeCtx, *input.Upload)
		if err != nil {
			return nil, err
		}
	}

	payload, err := domain.NewPayload(body, att)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		SenderID:   sender.ID,
		ReceiverID: receiver.ID,
		Payload:    payload,
	}

	start := time.Now()
	err = s.messageRepo.Append(storeCtx, msg)
	metrics.StoreLatency.WithLabelValues("append").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, domain.ErrEmptyPayload) {
			return nil, ErrEmptyPayload
		}
		return nil, fmt.Errorf("%w: appending message: %v", ErrStorageUnavailable, err)
	}
	metrics.MessagesPersisted.WithLabelValues(payloadKind(payload)).Inc()

	// Persisted. Delivery is not cancelled from here on.
	delivery := domain.Unreached
	if s.notifier != nil {
		report := s.notifier.NotifyNewMessage(msg, DeliveryTarget{
			ReceiverID:    receiver.ID,
			RoomID:        input.RoomID,
			ExcludeSocket: input.OriginSocket,
		})
		delivery = report.Outcome
	}

	s.log.Debug().
		Str("message_id", msg.ID).
		Str("sender_id", string(msg.SenderID)).
		Str("receiver_id", string(msg.ReceiverID)).
		Str("delivery", string(delivery)).
		Msg("message sent")

	return &SendResult{Message: msg, Delivery: delivery}, nil
}

// ListConversation returns the history between the caller and other. An
// unknown other yields an empty list.
func (s *MessageService) ListConversation(ctx context.Context, identity domain.Identity, other domain.UserID) (*MessageListResponse, error) {
	if !identity.ValidAt(time.Now()) {
		return nil, ErrInvalidCredential
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	start := time.Now()
	messages, err := s.messageRepo.ListConversation(storeCtx, identity.UserID, other)
	metrics.StoreLatency.WithLabelValues("list").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: listing conversation: %v", ErrStorageUnavailable, err)
	}

	if messages == nil {
		messages = []domain.Message{}
	}
	return &MessageListResponse{Messages: messages}, nil
}

func rateLimitKey(sender domain.UserID) string {
	return "send:" + string(sender)
}

// checkRateLimit counts one send for sender. counted reports whether a hit
// was recorded that a failed send should give back.
func (s *MessageService) checkRateLimit(ctx context.Context, sender domain.UserID) (counted bool, err error) {
	if s.limiter == nil {
		return false, nil
	}
	count, err := s.limiter.Increment(ctx, rateLimitKey(sender), s.rateWindow)
	if err != nil {
		// Fail open.
		s.log.Warn().Err(err).Str("sender_id", string(sender)).Msg("rate limiter unavailable")
		return false, nil
	}
	if count > s.rateLimit {
		return false, ErrRateLimited
	}
	return true, nil
}

func (s *MessageService) refundRateLimit(ctx context.Context, sender domain.UserID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()
	if err := s.limiter.Decrement(ctx, rateLimitKey(sender)); err != nil {
		s.log.Warn().Err(err).Str("sender_id", string(sender)).Msg("rate limit refund failed")
	}
}

func payloadKind(p domain.Payload) string {
	switch p.(type) {
	case domain.TextPayload:
		return "text"
	case domain.FilePayload:
		return "file"
	default:
		return "mixed"
	}
}
