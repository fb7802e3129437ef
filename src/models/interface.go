package models

import (
	"context"
	"time"

	genai "github.com/google/generative-ai-go/genai"
)

// ModelParams is the fully resolved configuration for one provider call.
// Nil or empty fields are left unset on the outgoing request.
type ModelParams struct {
	Model             string
	GenerationConfig  *genai.GenerationConfig
	SafetySettings    []*genai.SafetySetting
	Tools             []*genai.Tool
	ToolConfig        *genai.ToolConfig
	SystemInstruction *genai.Content
	CachedContent     string
}

// ResponseIterator yields streamed response chunks. Next returns
// iterator.Done once the stream is exhausted.
type ResponseIterator interface {
	Next() (*genai.GenerateContentResponse, error)
}

// Generator issues stateless generation calls.
type Generator interface {
	GenerateContent(ctx context.Context, p ModelParams, parts ...genai.Part) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, p ModelParams, parts ...genai.Part) ResponseIterator
}

// ChatSession is a provider-side conversation. The history it holds is
// authoritative; callers must not send on one session concurrently.
type ChatSession interface {
	SendMessage(ctx context.Context, p ModelParams, parts ...genai.Part) (*genai.GenerateContentResponse, error)
	History() []*genai.Content
}

// ChatStarter opens conversations seeded with an initial history.
type ChatStarter interface {
	StartChat(p ModelParams, history []*genai.Content) ChatSession
}

// UploadOptions describes a file upload.
type UploadOptions struct {
	DisplayName string
	MIMEType    string
}

// FileStore manages files held by the provider's Files API.
type FileStore interface {
	UploadFile(ctx context.Context, path string, opts UploadOptions) (*genai.File, error)
	GetFile(ctx context.Context, name string) (*genai.File, error)
	ListFiles(ctx context.Context, limit int) ([]*genai.File, error)
	DeleteFile(ctx context.Context, name string) error
}

// CacheStore manages cached content.
type CacheStore interface {
	CreateCache(ctx context.Context, cc *genai.CachedContent) (*genai.CachedContent, error)
	GetCache(ctx context.Context, name string) (*genai.CachedContent, error)
	ListCaches(ctx context.Context, limit int) ([]*genai.CachedContent, error)
	UpdateCache(ctx context.Context, name string, expireTime time.Time, ttl time.Duration) (*genai.CachedContent, error)
	DeleteCache(ctx context.Context, name string) error
}

// Transport is everything the server needs from the provider.
type Transport interface {
	Generator
	ChatStarter
	FileStore
	CacheStore
	Close() error
}
