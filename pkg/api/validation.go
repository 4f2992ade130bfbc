package api

import "fmt"

// DefaultMaxTokens is the completion budget used when a request does not
// specify max_tokens.
const DefaultMaxTokens = 300

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	DefaultMaxTokens int
	MaxTokensLimit   int
	MaxMessages      int
	MaxContentSize   int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		DefaultMaxTokens: DefaultMaxTokens,
		MaxTokensLimit:   8192,
		MaxMessages:      1000,
		MaxContentSize:   1 << 20, // 1MB per message
	}
}

// ValidateChatRequest checks a ChatRequest. It returns an *APIError
// describing the first validation failure, or nil if the request is valid.
func ValidateChatRequest(req *ChatRequest, cfg ValidationConfig) *APIError {
	if len(req.Messages) == 0 {
		return NewInvalidRequestError("messages", "messages must be a non-empty list")
	}

	if cfg.MaxMessages > 0 && len(req.Messages) > cfg.MaxMessages {
		return NewInvalidRequestError("messages",
			fmt.Sprintf("messages exceeds maximum of %d entries", cfg.MaxMessages))
	}

	if apiErr := ValidateMessages(req.Messages, cfg); apiErr != nil {
		return apiErr
	}

	if req.MaxTokens != nil {
		if *req.MaxTokens <= 0 {
			return NewInvalidRequestError("max_tokens", "max_tokens must be positive")
		}
		if cfg.MaxTokensLimit > 0 && *req.MaxTokens > cfg.MaxTokensLimit {
			return NewInvalidRequestError("max_tokens",
				fmt.Sprintf("max_tokens exceeds maximum of %d", cfg.MaxTokensLimit))
		}
	}

	if req.SessionID != "" && !ValidateSessionID(req.SessionID) {
		return NewInvalidRequestError("session_id", "malformed session ID")
	}

	return nil
}

// ValidateMessages checks roles, content size and the single-system-message rule.
func ValidateMessages(msgs []Message, cfg ValidationConfig) *APIError {
	systems := 0
	for i, m := range msgs {
		param := fmt.Sprintf("messages[%d]", i)
		if !m.Role.Valid() {
			return NewInvalidRequestError(param+".role",
				fmt.Sprintf("unknown role %q", m.Role))
		}
		if cfg.MaxContentSize > 0 && len(m.Content) > cfg.MaxContentSize {
			return NewInvalidRequestError(param+".content",
				fmt.Sprintf("content exceeds maximum size of %d bytes", cfg.MaxContentSize))
		}
		if m.Role == RoleSystem {
			systems++
			if systems > 1 {
				return NewInvalidRequestError(param, "at most one system message is allowed")
			}
		}
	}
	return nil
}

// MaxTokens returns the completion budget for req, applying the default.
func (cfg ValidationConfig) MaxTokens(req *ChatRequest) int {
	if req.MaxTokens != nil {
		return *req.MaxTokens
	}
	if cfg.DefaultMaxTokens > 0 {
		return cfg.DefaultMaxTokens
	}
	return DefaultMaxTokens
}
