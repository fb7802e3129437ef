// Package gemini turns Gemini API calls into deterministic outcomes. It owns
// the chat session registry, resolves the model and layered configuration
// for every call, normalizes provider responses and maps failures onto a
// small error taxonomy consumed by the tool layer.
package gemini

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	genai "github.com/google/generative-ai-go/genai"

	"github.com/Protocol-Lattice/gemini-mcp/src/models"
)

// Options configure a Service.
type Options struct {
	// DefaultModel is used when neither the call nor the session names one.
	DefaultModel string
	// Registry holds chat sessions. A registry with default retention is
	// created when nil.
	Registry *Registry
	Logger   *slog.Logger
}

// Service dispatches generation, chat, file and cache calls.
type Service struct {
	transport    models.Transport
	defaultModel string
	sessions     *Registry
	logger       *slog.Logger
}

func NewService(transport models.Transport, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry(transport, RegistryConfig{Logger: logger})
	}
	return &Service{
		transport:    transport,
		defaultModel: resolveModel(opts.DefaultModel),
		sessions:     registry,
		logger:       logger,
	}
}

// Sessions exposes the chat registry.
func (s *Service) Sessions() *Registry { return s.sessions }

// DefaultModel reports the process-wide fallback model, possibly empty.
func (s *Service) DefaultModel() string { return s.defaultModel }

// callParams resolves the model for a stateless call. It fails before any
// provider traffic when no model is available or when a cached content is
// combined with settings the cache already fixes.
func (s *Service) callParams(opts CallOptions) (models.ModelParams, error) {
	model := resolveModel(opts.Model, s.defaultModel)
	if model == "" {
		return models.ModelParams{}, &ConfigurationError{Message: "no model specified and no default model configured"}
	}
	params := opts.Overrides.apply(models.ModelParams{
		Model:             model,
		SystemInstruction: opts.SystemInstruction,
		CachedContent:     opts.CachedContent,
	})
	if params.CachedContent != "" {
		switch {
		case params.SystemInstruction != nil:
			return models.ModelParams{}, &ConfigurationError{Message: "systemInstruction cannot be combined with cached content; set it on the cache"}
		case len(params.Tools) > 0:
			return models.ModelParams{}, &ConfigurationError{Message: "tools cannot be combined with cached content; set them on the cache"}
		case params.ToolConfig != nil:
			return models.ModelParams{}, &ConfigurationError{Message: "toolConfig cannot be combined with cached content; set it on the cache"}
		}
	}
	return params, nil
}

// Generate runs a single-shot prompt.
func (s *Service) Generate(ctx context.Context, prompt string, opts CallOptions) (Outcome, error) {
	params, err := s.callParams(opts)
	if err != nil {
		return Outcome{}, err
	}
	start := time.Now()
	resp, err := s.transport.GenerateContent(ctx, params, genai.Text(prompt))
	return s.settle("generate", params.Model, start, resp, err)
}

// GenerateWithFunctions runs a prompt with the given function declarations
// attached in addition to any tools in opts.
func (s *Service) GenerateWithFunctions(ctx context.Context, prompt string, decls []*genai.FunctionDeclaration, opts CallOptions) (Outcome, error) {
	if len(decls) == 0 {
		return Outcome{}, &ConfigurationError{Message: "at least one function declaration is required"}
	}
	opts.Tools = append(append([]*genai.Tool(nil), opts.Tools...), &genai.Tool{FunctionDeclarations: decls})
	params, err := s.callParams(opts)
	if err != nil {
		return Outcome{}, err
	}
	start := time.Now()
	resp, err := s.transport.GenerateContent(ctx, params, genai.Text(prompt))
	return s.settle("function_call", params.Model, start, resp, err)
}

// StartChat opens a session and returns its id.
func (s *Service) StartChat(opts ChatOptions) (string, error) {
	model := resolveModel(opts.Model, s.defaultModel)
	defaults := opts.Overrides.apply(models.ModelParams{SystemInstruction: opts.SystemInstruction})
	sess, err := s.sessions.Create(model, opts.History, defaults)
	if err != nil {
		return "", err
	}
	s.logger.Info("chat session started", "session_id", sess.ID(), "model", sess.Model())
	return sess.ID(), nil
}

// SendMessage sends a user message on a session.
func (s *Service) SendMessage(ctx context.Context, sessionID, message string, o Overrides) (Outcome, error) {
	return s.sendTurn(ctx, sessionID, o, genai.Text(message))
}

// SendFunctionResult answers function calls the model made on a session.
func (s *Service) SendFunctionResult(ctx context.Context, sessionID string, results []FunctionResult, o Overrides) (Outcome, error) {
	if len(results) == 0 {
		return Outcome{}, &ConfigurationError{Message: "at least one function result is required"}
	}
	parts := make([]genai.Part, 0, len(results))
	for _, r := range results {
		parts = append(parts, genai.FunctionResponse{Name: r.Name, Response: r.Response})
	}
	return s.sendTurn(ctx, sessionID, o, parts...)
}

func (s *Service) sendTurn(ctx context.Context, sessionID string, o Overrides, parts ...genai.Part) (Outcome, error) {
	sess, err := s.sessions.Lookup(sessionID)
	if err != nil {
		return Outcome{}, err
	}

	sess.turn.Lock()
	defer sess.turn.Unlock()

	params := o.apply(sess.defaults)
	start := time.Now()
	resp, err := sess.chat.SendMessage(ctx, params, parts...)
	return s.settle("chat", sess.model, start, resp, err, "session_id", sess.id)
}

// EndChat removes a session.
func (s *Service) EndChat(sessionID string) error {
	return s.sessions.Remove(sessionID)
}

// History returns the turns recorded on a session.
func (s *Service) History(sessionID string) ([]*genai.Content, error) {
	sess, err := s.sessions.Lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.History(), nil
}

// settle routes a provider result through the normalizer. Blocked and
// safety-stopped outcomes are returned together with a SafetyError.
func (s *Service) settle(op, model string, start time.Time, resp *genai.GenerateContentResponse, err error, attrs ...any) (Outcome, error) {
	log := s.logger.With(append([]any{"op", op, "model", model}, attrs...)...)

	resp, err = unfoldBlocked(resp, err)
	if err != nil {
		err = translateError(err, "", "")
		log.Warn("gemini call failed", "error", err, "elapsed", time.Since(start))
		return Outcome{}, err
	}

	out, err := Normalize(resp)
	if err != nil {
		log.Error("gemini returned an unexpected response shape", "error", err, "raw", rawResponse(resp))
		return Outcome{}, err
	}

	switch out.Kind {
	case OutcomeBlocked, OutcomeSafetyStopped:
		log.Warn("gemini response blocked by safety policy", "kind", out.Kind.String(), "reason", out.Reason)
		return out, safetyErrorFrom(out)
	}
	if out.FinishReason != "" && !benignFinishName(out.FinishReason) {
		log.Warn("gemini finished abnormally, keeping partial content", "finish_reason", out.FinishReason)
	}
	log.Debug("gemini call completed", "kind", out.Kind.String(), "elapsed", time.Since(start), "usage", out.Usage)
	return out, nil
}

func benignFinishName(name string) bool {
	switch name {
	case "STOP", "MAX_TOKENS", "FINISH_REASON_UNSPECIFIED":
		return true
	}
	return false
}

func rawResponse(resp *genai.GenerateContentResponse) string {
	b, err := json.Marshal(resp)
	if err != nil {
		return err.Error()
	}
	return string(b)
}
