package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rhuss/chatrelay/pkg/api"
	"github.com/rhuss/chatrelay/pkg/debug"
	"github.com/rhuss/chatrelay/pkg/relay"
	"github.com/rhuss/chatrelay/pkg/transport"
)

// Config holds Service settings.
type Config struct {
	Validation api.ValidationConfig
	Logger     *slog.Logger
}

// Service relays chat requests to the upstream model.
type Service struct {
	client *relay.Client
	store  transport.SessionStore
	cfg    Config
}

var _ transport.ChatHandler = (*Service)(nil)

// New creates a Service. client may be nil when the upstream could not be
// initialized; every request then fails with a server error. store may be
// nil, in which case session_id is rejected.
func New(client *relay.Client, store transport.SessionStore, cfg Config) *Service {
	if cfg.Validation == (api.ValidationConfig{}) {
		cfg.Validation = api.DefaultValidationConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{client: client, store: store, cfg: cfg}
}

// Ready reports whether the upstream client is available.
func (s *Service) Ready() bool {
	return s.client != nil
}

// Client returns the relay client, or nil.
func (s *Service) Client() *relay.Client {
	return s.client
}

// Chat implements transport.ChatHandler.
func (s *Service) Chat(ctx context.Context, req *api.ChatRequest, w transport.ResponseWriter) error {
	if s.client == nil {
		return api.NewServerError("upstream client not initialized")
	}
	if apiErr := api.ValidateChatRequest(req, s.cfg.Validation); apiErr != nil {
		return apiErr
	}

	conv, err := s.conversation(ctx, req)
	if err != nil {
		return err
	}
	maxTokens := s.cfg.Validation.MaxTokens(req)

	debug.Log("relay", "chat request",
		"request_id", transport.RequestIDFromContext(ctx),
		"messages", len(conv),
		"max_tokens", maxTokens,
		"stream", req.Stream,
	)

	if req.Stream {
		return s.stream(ctx, req, conv, maxTokens, w)
	}
	return s.complete(ctx, req, conv, maxTokens, w)
}

func (s *Service) complete(ctx context.Context, req *api.ChatRequest, conv api.Conversation, maxTokens int, w transport.ResponseWriter) error {
	text, err := s.client.TryComplete(ctx, conv, maxTokens)
	if err != nil {
		text = relay.ErrorText(err)
	} else {
		s.persist(ctx, req, text)
	}
	return w.WriteResponse(ctx, &api.ChatResponse{Text: text, SessionID: req.SessionID})
}

func (s *Service) stream(ctx context.Context, req *api.ChatRequest, conv api.Conversation, maxTokens int, w transport.ResponseWriter) error {
	st := s.client.Stream(ctx, conv, maxTokens)
	defer st.Close()

	var reply strings.Builder
	for frag := range st.Fragments() {
		reply.WriteString(frag)
		if err := w.WriteEvent(ctx, api.FragmentEvent(frag)); err != nil {
			return err
		}
	}

	if err := st.Err(); err != nil {
		s.cfg.Logger.Warn("stream ended with error",
			"request_id", transport.RequestIDFromContext(ctx),
			"frames", st.Frames(),
			"error", err,
		)
		return w.WriteEvent(ctx, api.ErrorEvent(err.Error()))
	}

	if st.FallbackErr() == nil {
		s.persist(ctx, req, reply.String())
	}
	return w.WriteEvent(ctx, api.DoneEvent())
}

// conversation returns the messages sent upstream: stored history followed
// by the request messages. A system message in the request supersedes the
// stored one.
func (s *Service) conversation(ctx context.Context, req *api.ChatRequest) (api.Conversation, error) {
	conv := api.Conversation(req.Messages)
	if req.SessionID == "" {
		return conv, nil
	}
	if s.store == nil {
		return nil, api.NewInvalidRequestError("session_id", "sessions are not available (no store configured)")
	}

	sess, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, transport.ToAPIError(err, "session "+req.SessionID)
	}

	history := api.Conversation(sess.Messages)
	if _, ok := conv.System(); ok {
		history = history.WithoutSystem()
	}

	merged := make(api.Conversation, 0, len(history)+len(conv))
	if sys, ok := conv.System(); ok {
		merged = append(merged, sys)
	}
	merged = append(merged, history...)
	merged = append(merged, conv.WithoutSystem()...)
	return merged, nil
}

// persist appends the request turns and the reply to the session. Store
// failures are logged; the caller already has its answer.
func (s *Service) persist(ctx context.Context, req *api.ChatRequest, reply string) {
	if req.SessionID == "" || s.store == nil {
		return
	}

	msgs := append(api.Conversation(req.Messages).WithoutSystem(),
		api.Message{Role: api.RoleAssistant, Content: reply})

	if err := s.store.AppendMessages(context.WithoutCancel(ctx), req.SessionID, msgs); err != nil {
		s.cfg.Logger.Error("failed to persist session messages",
			"session_id", req.SessionID,
			"error", err,
		)
	}
}
