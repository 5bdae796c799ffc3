package app

import (
	"context"
	"strings"
	"time"

	"chatrelay/internal/genproc"
	"chatrelay/internal/logger"
	"chatrelay/internal/model"
)

type TurnStore interface {
	Create(turn *model.ChatTurn) error
	ListRecentByUsername(username string, limit int) ([]model.ChatTurn, error)
	DeleteByUsername(username string) error
}

type DocumentStore interface {
	Create(doc *model.Document) error
	LatestContentByUsername(username string) (string, bool, error)
	DeleteByUsername(username string) error
}

type AsyncTurnPublisher interface {
	Publish(ctx context.Context, turn model.ChatTurn) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, username string) ([]model.ChatTurn, bool, error)
	SetHistory(ctx context.Context, username string, turns []model.ChatTurn) error
	DeleteHistory(ctx context.Context, username string) error
	MarkDirty(ctx context.Context, username string) error
	IsDirty(ctx context.Context, username string) (bool, error)
}

const historyLimit = 50

// ChatService owns the streaming generation pipeline: it records the user
// turn, composes the prompt, runs one generation process per request, relays
// chunks to the caller, and persists the accumulated reply.
type ChatService struct {
	turns        TurnStore
	docs         DocumentStore
	publisher    AsyncTurnPublisher
	historyCache HistoryCache
	generators   genproc.Factory
	genTimeout   time.Duration
	log          *logger.Logger
}

func NewChatService(
	turns TurnStore,
	docs DocumentStore,
	publisher AsyncTurnPublisher,
	historyCache HistoryCache,
	generators genproc.Factory,
	genTimeout time.Duration,
	log *logger.Logger,
) *ChatService {
	if log == nil {
		log = logger.NewNop()
	}
	return &ChatService{
		turns:        turns,
		docs:         docs,
		publisher:    publisher,
		historyCache: historyCache,
		generators:   generators,
		genTimeout:   genTimeout,
		log:          log,
	}
}

type StreamChatInput struct {
	Username string
	Message  string
}

// StreamChat runs one full generation pipeline. Every error it returns happens
// before the first chunk is forwarded, so the handler can still send a clean
// error response; anything that goes wrong after streaming starts is only
// logged and the partial reply is preserved.
func (s *ChatService) StreamChat(ctx context.Context, input StreamChatInput, onChunk func(string) error) (string, error) {
	username := strings.TrimSpace(input.Username)
	message := strings.TrimSpace(input.Message)
	if username == "" || message == "" {
		return "", ErrInvalidInput
	}

	// The user turn must be durable before generation begins.
	if err := s.turns.Create(&model.ChatTurn{
		Username: username,
		Role:     model.RoleUser,
		Message:  message,
	}); err != nil {
		return "", err
	}
	s.invalidateHistory(ctx, username)

	docText, _, err := s.docs.LatestContentByUsername(username)
	if err != nil {
		s.log.Warn("load latest document failed, continuing without context", "username", username, "error", err)
		docText = ""
	}
	prompt := composePrompt(message, docText)

	// The process lifetime is detached from the request context: a client
	// disconnect stops forwarding but the process is allowed to finish so the
	// reply can still be persisted. The configured timeout is the only bound.
	runCtx := context.Background()
	if s.genTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, s.genTimeout)
		defer cancel()
	}

	gen := s.generators.New()
	if err := gen.Start(runCtx); err != nil {
		s.log.Error("generator spawn failed", "username", username, "error", err)
		return "", ErrSpawn
	}

	if err := gen.Feed(prompt); err != nil {
		// The process may still emit something; keep draining.
		s.log.Warn("feeding prompt failed", "username", username, "error", err)
	}

	forwarding := true
	for chunk := range gen.Chunks() {
		if !forwarding {
			continue
		}
		if ctx.Err() != nil {
			forwarding = false
			s.log.Info("client gone, draining generator without forwarding", "username", username)
			continue
		}
		if err := onChunk(chunk); err != nil {
			forwarding = false
			s.log.Info("forwarding stopped, draining generator", "username", username, "error", err)
		}
	}

	if err := gen.Wait(); err != nil {
		s.log.Warn("generator finished abnormally, keeping partial reply", "username", username, "error", err)
	}

	full := strings.TrimSpace(gen.Accumulated())
	if full == "" {
		return "", nil
	}

	// Persistence is best-effort after the stream: detached context because
	// the request may already be gone.
	if err := s.publisher.Publish(context.Background(), model.ChatTurn{
		Username: username,
		Role:     model.RoleBot,
		Message:  full,
	}); err != nil {
		s.log.Error("persist bot turn failed", "username", username, "error", err)
	}
	s.invalidateHistory(context.Background(), username)

	return full, nil
}

// GetHistory returns up to 50 turns for the user, newest first, preferring the
// cache when it is warm and clean.
func (s *ChatService) GetHistory(ctx context.Context, username string) ([]model.ChatTurn, error) {
	if strings.TrimSpace(username) == "" {
		return []model.ChatTurn{}, nil
	}

	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, username)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, username); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	turns, err := s.turns.ListRecentByUsername(username, historyLimit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, username); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, username, turns)
		}
	}
	return turns, nil
}

// ClearHistory removes all turns and documents for one user; other users'
// rows are untouched.
func (s *ChatService) ClearHistory(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrInvalidInput
	}

	if err := s.turns.DeleteByUsername(username); err != nil {
		return err
	}
	if err := s.docs.DeleteByUsername(username); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(ctx, username)
	}
	return nil
}

func (s *ChatService) invalidateHistory(ctx context.Context, username string) {
	if s.historyCache == nil {
		return
	}
	_ = s.historyCache.MarkDirty(ctx, username)
	_ = s.historyCache.DeleteHistory(ctx, username)
}
