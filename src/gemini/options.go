package gemini

import (
	"strings"

	genai "github.com/google/generative-ai-go/genai"

	"github.com/Protocol-Lattice/gemini-mcp/src/models"
)

// Overrides are the per-call knobs that layer over session or process
// defaults. Unset fields inherit.
type Overrides struct {
	GenerationConfig *genai.GenerationConfig
	SafetySettings   []*genai.SafetySetting
	Tools            []*genai.Tool
	ToolConfig       *genai.ToolConfig
}

// CallOptions configures a stateless generation call.
type CallOptions struct {
	Overrides

	// Model overrides the process default model.
	Model             string
	SystemInstruction *genai.Content
	// CachedContent names a cache (cachedContents/...) to generate against.
	CachedContent string
}

// ChatOptions configures a new session. Overrides become the session's
// defaults for every later turn.
type ChatOptions struct {
	Overrides

	Model             string
	History           []*genai.Content
	SystemInstruction *genai.Content
}

// FunctionResult is the caller's answer to a FunctionCall.
type FunctionResult struct {
	Name     string
	Response map[string]any
}

// resolveModel returns the first non-blank candidate.
func resolveModel(candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

// apply layers o over base. Generation config merges field by field, safety
// settings merge per harm category, tools and tool config are replaced
// when o supplies them.
func (o Overrides) apply(base models.ModelParams) models.ModelParams {
	out := base
	out.GenerationConfig = mergeGenerationConfig(base.GenerationConfig, o.GenerationConfig)
	out.SafetySettings = mergeSafetySettings(base.SafetySettings, o.SafetySettings)
	if len(o.Tools) > 0 {
		out.Tools = o.Tools
	}
	if o.ToolConfig != nil {
		out.ToolConfig = o.ToolConfig
	}
	return out
}

func mergeGenerationConfig(base, over *genai.GenerationConfig) *genai.GenerationConfig {
	if over == nil {
		return base
	}
	if base == nil {
		c := *over
		return &c
	}
	merged := *base
	if over.CandidateCount != nil {
		merged.CandidateCount = over.CandidateCount
	}
	if len(over.StopSequences) > 0 {
		merged.StopSequences = over.StopSequences
	}
	if over.MaxOutputTokens != nil {
		merged.MaxOutputTokens = over.MaxOutputTokens
	}
	if over.Temperature != nil {
		merged.Temperature = over.Temperature
	}
	if over.TopP != nil {
		merged.TopP = over.TopP
	}
	if over.TopK != nil {
		merged.TopK = over.TopK
	}
	if over.ResponseMIMEType != "" {
		merged.ResponseMIMEType = over.ResponseMIMEType
	}
	if over.ResponseSchema != nil {
		merged.ResponseSchema = over.ResponseSchema
	}
	return &merged
}

func mergeSafetySettings(base, over []*genai.SafetySetting) []*genai.SafetySetting {
	if len(over) == 0 {
		return base
	}
	merged := make([]*genai.SafetySetting, 0, len(base)+len(over))
	index := make(map[genai.HarmCategory]int, len(base)+len(over))
	for _, s := range append(append([]*genai.SafetySetting(nil), base...), over...) {
		if s == nil {
			continue
		}
		if i, ok := index[s.Category]; ok {
			merged[i] = s
			continue
		}
		index[s.Category] = len(merged)
		merged = append(merged, s)
	}
	return merged
}
