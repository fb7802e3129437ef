package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ---------------------------- Google Gemini ----------------------------------

// GeminiTransport implements Transport on top of the generative-ai-go client.
type GeminiTransport struct {
	Client *genai.Client
}

var _ Transport = (*GeminiTransport)(nil)

// NewGeminiTransport dials the Gemini API with the given key. Extra client
// options (endpoint, HTTP client) are appended after the key.
func NewGeminiTransport(ctx context.Context, apiKey string, opts ...option.ClientOption) (*GeminiTransport, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: missing API key")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	return &GeminiTransport{Client: client}, nil
}

// Close releases the underlying connection.
func (g *GeminiTransport) Close() error {
	return g.Client.Close()
}

func (g *GeminiTransport) model(p ModelParams) *genai.GenerativeModel {
	var m *genai.GenerativeModel
	if p.CachedContent != "" {
		m = g.Client.GenerativeModelFromCachedContent(&genai.CachedContent{Name: p.CachedContent, Model: p.Model})
	} else {
		m = g.Client.GenerativeModel(p.Model)
	}
	if p.GenerationConfig != nil {
		m.GenerationConfig = *p.GenerationConfig
	}
	m.SafetySettings = p.SafetySettings
	m.Tools = p.Tools
	m.ToolConfig = p.ToolConfig
	m.SystemInstruction = p.SystemInstruction
	return m
}

// GenerateContent issues a single request.
func (g *GeminiTransport) GenerateContent(ctx context.Context, p ModelParams, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	return g.model(p).GenerateContent(ctx, parts...)
}

// GenerateContentStream opens a server-streamed request. Nothing is sent
// until the first call to Next.
func (g *GeminiTransport) GenerateContentStream(ctx context.Context, p ModelParams, parts ...genai.Part) ResponseIterator {
	return g.model(p).GenerateContentStream(ctx, parts...)
}

// StartChat opens a conversation seeded with history.
func (g *GeminiTransport) StartChat(p ModelParams, history []*genai.Content) ChatSession {
	return &geminiChat{transport: g, history: append([]*genai.Content(nil), history...)}
}

type geminiChat struct {
	transport *GeminiTransport

	mu      sync.Mutex
	history []*genai.Content
}

// SendMessage runs one turn with p. The SDK chat is rebuilt per turn so that
// per-call overrides apply; history is committed only when the turn succeeds
// with a model reply, keeping user and model turns paired.
func (c *geminiChat) SendMessage(ctx context.Context, p ModelParams, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	cs := c.transport.model(p).StartChat()
	cs.History = c.History()

	resp, err := cs.SendMessage(ctx, parts...)
	if err != nil || modelReply(resp) == nil {
		return resp, err
	}

	c.mu.Lock()
	c.history = cs.History
	c.mu.Unlock()
	return resp, nil
}

func (c *geminiChat) History() []*genai.Content {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*genai.Content(nil), c.history...)
}

// ---------------------------- Files -------------------------------------------

func (g *GeminiTransport) UploadFile(ctx context.Context, path string, opts UploadOptions) (*genai.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return g.Client.UploadFile(ctx, "", f, &genai.UploadFileOptions{
		DisplayName: opts.DisplayName,
		MIMEType:    opts.MIMEType,
	})
}

func (g *GeminiTransport) GetFile(ctx context.Context, name string) (*genai.File, error) {
	return g.Client.GetFile(ctx, name)
}

func (g *GeminiTransport) ListFiles(ctx context.Context, limit int) ([]*genai.File, error) {
	it := g.Client.ListFiles(ctx)
	var out []*genai.File
	for limit <= 0 || len(out) < limit {
		f, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (g *GeminiTransport) DeleteFile(ctx context.Context, name string) error {
	return g.Client.DeleteFile(ctx, name)
}

// ---------------------------- Cached content ----------------------------------

func (g *GeminiTransport) CreateCache(ctx context.Context, cc *genai.CachedContent) (*genai.CachedContent, error) {
	return g.Client.CreateCachedContent(ctx, cc)
}

func (g *GeminiTransport) GetCache(ctx context.Context, name string) (*genai.CachedContent, error) {
	return g.Client.GetCachedContent(ctx, name)
}

func (g *GeminiTransport) ListCaches(ctx context.Context, limit int) ([]*genai.CachedContent, error) {
	it := g.Client.ListCachedContents(ctx)
	var out []*genai.CachedContent
	for limit <= 0 || len(out) < limit {
		cc, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cc)
	}
	return out, nil
}

// UpdateCache moves the expiry of a cache. Exactly one of expireTime and ttl
// should be set; ttl wins when both are.
func (g *GeminiTransport) UpdateCache(ctx context.Context, name string, expireTime time.Time, ttl time.Duration) (*genai.CachedContent, error) {
	exp := genai.ExpireTimeOrTTL{ExpireTime: expireTime}
	if ttl > 0 {
		exp = genai.ExpireTimeOrTTL{TTL: ttl}
	}
	return g.Client.UpdateCachedContent(ctx, &genai.CachedContent{Name: name}, &genai.CachedContentToUpdate{Expiration: &exp})
}

func (g *GeminiTransport) DeleteCache(ctx context.Context, name string) error {
	return g.Client.DeleteCachedContent(ctx, name)
}
