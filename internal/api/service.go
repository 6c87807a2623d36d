package api

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/chat"
	"github.com/matheus3301/rentchat/internal/engine"
	"github.com/matheus3301/rentchat/internal/loop"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Service implements ChatServer on top of the engine. Clients only observe
// and issue commands; every mutation goes through the engine.
type Service struct {
	engine      *engine.Engine
	bus         *bus.Bus
	sessionName string
	logger      *zap.Logger

	closing   chan struct{}
	closeOnce sync.Once

	// views maps each attached view to the conversation it has open.
	mu    sync.Mutex
	views map[string]string
}

// NewService creates the Chat service.
func NewService(e *engine.Engine, b *bus.Bus, sessionName string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		engine:      e,
		bus:         b,
		sessionName: sessionName,
		logger:      logger,
		closing:     make(chan struct{}),
		views:       make(map[string]string),
	}
}

// Shutdown ends every open WatchEvents stream.
func (s *Service) Shutdown() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Service) ListConversations(ctx context.Context, _ *ListConversationsRequest) (*ListConversationsResponse, error) {
	convs, err := s.engine.Conversations(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	out := make([]Conversation, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationToWire(c))
	}
	return &ListConversationsResponse{Conversations: out}, nil
}

func (s *Service) ListMessages(ctx context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	if req.ConversationID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "conversation_id is required")
	}
	user, err := s.engine.UserID(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	msgs, err := s.engine.Messages(ctx, req.ConversationID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageToWire(m, user))
	}
	return &ListMessagesResponse{Messages: out}, nil
}

func (s *Service) OpenConversation(ctx context.Context, req *ConversationRequest) (*Empty, error) {
	if req.ViewID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "view_id is required")
	}
	if !s.attached(req.ViewID) {
		return nil, grpcstatus.Errorf(codes.FailedPrecondition, "view %q is not attached to an event stream", req.ViewID)
	}
	if err := s.engine.Open(ctx, req.ConversationID); err != nil {
		return nil, toStatus(err)
	}
	if !s.bind(req.ViewID, req.ConversationID) {
		// The stream ended while the conversation was opening.
		s.release(ctx, req.ConversationID)
		return nil, grpcstatus.Errorf(codes.FailedPrecondition, "view %q is not attached to an event stream", req.ViewID)
	}
	return &Empty{}, nil
}

// CloseConversation leaves a conversation. With a view id, the conversation
// stays open while another attached view still holds it.
func (s *Service) CloseConversation(ctx context.Context, req *ConversationRequest) (*Empty, error) {
	if req.ViewID != "" {
		s.mu.Lock()
		if s.views[req.ViewID] == req.ConversationID {
			s.views[req.ViewID] = ""
		}
		held := s.heldLocked(req.ConversationID)
		s.mu.Unlock()
		if held {
			return &Empty{}, nil
		}
	}
	if err := s.engine.Close(ctx, req.ConversationID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Service) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	corr, err := s.engine.Send(ctx, req.ConversationID, req.Content)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SendMessageResponse{CorrelationID: corr}, nil
}

func (s *Service) ResendMessage(ctx context.Context, req *ResendMessageRequest) (*SendMessageResponse, error) {
	corr, err := s.engine.Resend(ctx, req.CorrelationID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SendMessageResponse{CorrelationID: corr}, nil
}

func (s *Service) CreateConversation(ctx context.Context, req *CreateConversationRequest) (*CreateConversationResponse, error) {
	if strings.TrimSpace(req.Subject) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "subject is required")
	}
	id, err := s.engine.CreateConversation(ctx, req.Subject, req.InitialMessage)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CreateConversationResponse{ConversationID: id}, nil
}

func (s *Service) GetStatus(ctx context.Context, _ *GetStatusRequest) (*GetStatusResponse, error) {
	user, err := s.engine.UserID(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	active, err := s.engine.Active(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	unread, err := s.engine.TotalUnread(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetStatusResponse{
		Session:            s.sessionName,
		UserID:             user,
		State:              string(s.engine.Status()),
		ActiveConversation: active,
		TotalUnread:        unread,
	}, nil
}

// WatchEvents streams bus events until the client goes away. The first event
// is a synthetic status event carrying the current state; a stream attaching
// a view always receives it, once the view is attached.
func (s *Service) WatchEvents(req *WatchEventsRequest, stream EventSender) error {
	ctx := stream.Context()
	ch, unsub := s.bus.Subscribe(req.Namespace, 256)
	defer unsub()

	if req.ViewID != "" {
		if err := s.attach(req.ViewID); err != nil {
			return err
		}
		defer s.detach(ctx, req.ViewID)
	}

	if req.MountList {
		if err := s.engine.Mount(ctx); err != nil {
			return toStatus(err)
		}
		defer func() {
			if err := s.engine.Unmount(context.WithoutCancel(ctx)); err != nil {
				s.logger.Debug("unmount after stream end", zap.Error(err))
			}
		}()
	}

	if req.ViewID != "" || strings.HasPrefix(bus.SessionStatus, req.Namespace) {
		current := bus.Event{
			ID:        uuid.NewString(),
			Kind:      bus.SessionStatus,
			Timestamp: time.Now(),
			Payload:   map[string]string{"to": string(s.engine.Status())},
		}
		if err := stream.Send(eventToWire(s.sessionName, current)); err != nil {
			return err
		}
	}

	for {
		select {
		case evt := <-ch:
			if err := stream.Send(eventToWire(s.sessionName, evt)); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		case <-s.closing:
			return nil
		}
	}
}

func (s *Service) attach(viewID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.views[viewID]; ok {
		return grpcstatus.Errorf(codes.AlreadyExists, "view %q is already attached", viewID)
	}
	s.views[viewID] = ""
	return nil
}

// detach drops a view whose stream ended and closes its conversation unless
// another view still holds it.
func (s *Service) detach(ctx context.Context, viewID string) {
	s.mu.Lock()
	conv := s.views[viewID]
	delete(s.views, viewID)
	s.mu.Unlock()
	if conv != "" {
		s.release(ctx, conv)
	}
}

func (s *Service) attached(viewID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.views[viewID]
	return ok
}

func (s *Service) bind(viewID, conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.views[viewID]; !ok {
		return false
	}
	s.views[viewID] = conversationID
	return true
}

func (s *Service) release(ctx context.Context, conversationID string) {
	s.mu.Lock()
	held := s.heldLocked(conversationID)
	s.mu.Unlock()
	if held {
		return
	}
	if err := s.engine.Close(context.WithoutCancel(ctx), conversationID); err != nil {
		s.logger.Debug("close after view ended", zap.String("conversation_id", conversationID), zap.Error(err))
		return
	}
	s.logger.Debug("view ended, conversation closed", zap.String("conversation_id", conversationID))
}

func (s *Service) heldLocked(conversationID string) bool {
	for _, c := range s.views {
		if c == conversationID {
			return true
		}
	}
	return false
}

func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chat.ErrUnauthorized):
		return grpcstatus.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, chat.ErrNotFound):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.Is(err, chat.ErrEmptyContent):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, chat.ErrNotFailed):
		return grpcstatus.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, loop.ErrClosed):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return grpcstatus.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Error(codes.DeadlineExceeded, err.Error())
	default:
		return grpcstatus.Error(codes.Internal, err.Error())
	}
}
