package gemini

import (
	"context"
	"strings"
	"time"

	genai "github.com/google/generative-ai-go/genai"
)

// CacheInfo describes cached content.
type CacheInfo struct {
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	CreateTime time.Time `json:"createTime"`
	UpdateTime time.Time `json:"updateTime"`
	ExpireTime time.Time `json:"expireTime"`
	Tokens     int32     `json:"totalTokenCount,omitempty"`
}

func cacheInfo(cc *genai.CachedContent) CacheInfo {
	if cc == nil {
		return CacheInfo{}
	}
	info := CacheInfo{
		Name:       cc.Name,
		Model:      cc.Model,
		CreateTime: cc.CreateTime,
		UpdateTime: cc.UpdateTime,
		ExpireTime: cc.Expiration.ExpireTime,
	}
	if cc.UsageMetadata != nil {
		info.Tokens = cc.UsageMetadata.TotalTokenCount
	}
	return info
}

func cacheName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(name, "cachedContents/") {
		return name
	}
	return "cachedContents/" + name
}

// CacheRequest describes content to cache. Set TTL or ExpireTime; the
// provider default applies when neither is set.
type CacheRequest struct {
	Model             string
	Contents          []*genai.Content
	SystemInstruction *genai.Content
	Tools             []*genai.Tool
	ToolConfig        *genai.ToolConfig
	TTL               time.Duration
	ExpireTime        time.Time
}

func (s *Service) CreateCache(ctx context.Context, req CacheRequest) (CacheInfo, error) {
	model := resolveModel(req.Model, s.defaultModel)
	if model == "" {
		return CacheInfo{}, &ConfigurationError{Message: "no model specified for cached content and no default model configured"}
	}
	if len(req.Contents) == 0 && req.SystemInstruction == nil {
		return CacheInfo{}, &ConfigurationError{Message: "cached content needs contents or a system instruction"}
	}
	cc, err := s.transport.CreateCache(ctx, &genai.CachedContent{
		Model:             model,
		Contents:          req.Contents,
		SystemInstruction: req.SystemInstruction,
		Tools:             req.Tools,
		ToolConfig:        req.ToolConfig,
		Expiration:        genai.ExpireTimeOrTTL{ExpireTime: req.ExpireTime, TTL: req.TTL},
	})
	if err != nil {
		return CacheInfo{}, translateError(err, "", "")
	}
	s.logger.Info("cached content created", "name", cc.Name, "model", model)
	return cacheInfo(cc), nil
}

func (s *Service) GetCache(ctx context.Context, name string) (CacheInfo, error) {
	name = cacheName(name)
	cc, err := s.transport.GetCache(ctx, name)
	if err != nil {
		return CacheInfo{}, translateError(err, "cache", name)
	}
	return cacheInfo(cc), nil
}

// ListCaches returns at most limit caches; limit <= 0 lists everything.
func (s *Service) ListCaches(ctx context.Context, limit int) ([]CacheInfo, error) {
	caches, err := s.transport.ListCaches(ctx, limit)
	if err != nil {
		return nil, translateError(err, "", "")
	}
	out := make([]CacheInfo, 0, len(caches))
	for _, cc := range caches {
		out = append(out, cacheInfo(cc))
	}
	return out, nil
}

// UpdateCache moves a cache's expiry. Exactly one of ttl and expireTime
// must be set.
func (s *Service) UpdateCache(ctx context.Context, name string, ttl time.Duration, expireTime time.Time) (CacheInfo, error) {
	if (ttl > 0) == !expireTime.IsZero() {
		return CacheInfo{}, &ConfigurationError{Message: "exactly one of ttl and expireTime is required"}
	}
	name = cacheName(name)
	cc, err := s.transport.UpdateCache(ctx, name, expireTime, ttl)
	if err != nil {
		return CacheInfo{}, translateError(err, "cache", name)
	}
	return cacheInfo(cc), nil
}

func (s *Service) DeleteCache(ctx context.Context, name string) error {
	name = cacheName(name)
	if err := s.transport.DeleteCache(ctx, name); err != nil {
		return translateError(err, "cache", name)
	}
	s.logger.Info("cached content deleted", "name", name)
	return nil
}
