package mcpserver

import (
	"fmt"
	"strings"
	"time"

	genai "github.com/google/generative-ai-go/genai"

	"github.com/Protocol-Lattice/gemini-mcp/src/gemini"
)

// argumentError reports tool arguments that could not be decoded or
// converted into provider types.
type argumentError struct {
	msg string
}

func (e *argumentError) Error() string { return e.msg }

func badArgs(format string, a ...any) error {
	return &argumentError{msg: fmt.Sprintf(format, a...)}
}

type generationConfigArgs struct {
	Temperature      *float32       `json:"temperature,omitempty"`
	TopP             *float32       `json:"topP,omitempty"`
	TopK             *int32         `json:"topK,omitempty"`
	MaxOutputTokens  *int32         `json:"maxOutputTokens,omitempty"`
	CandidateCount   *int32         `json:"candidateCount,omitempty"`
	StopSequences    []string       `json:"stopSequences,omitempty"`
	ResponseMIMEType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

func (a *generationConfigArgs) convert() (*genai.GenerationConfig, error) {
	if a == nil {
		return nil, nil
	}
	gc := &genai.GenerationConfig{
		Temperature:      a.Temperature,
		TopP:             a.TopP,
		TopK:             a.TopK,
		MaxOutputTokens:  a.MaxOutputTokens,
		CandidateCount:   a.CandidateCount,
		StopSequences:    a.StopSequences,
		ResponseMIMEType: a.ResponseMIMEType,
	}
	if a.ResponseSchema != nil {
		s, err := toGenaiSchema(a.ResponseSchema)
		if err != nil {
			return nil, badArgs("generationConfig.responseSchema: %v", err)
		}
		gc.ResponseSchema = s
	}
	return gc, nil
}

type safetySettingArgs struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

func convertSafety(in []safetySettingArgs) ([]*genai.SafetySetting, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]*genai.SafetySetting, 0, len(in))
	for i, s := range in {
		cat, err := gemini.ParseHarmCategory(s.Category)
		if err != nil {
			return nil, badArgs("safetySettings[%d]: %v", i, err)
		}
		th, err := gemini.ParseHarmBlockThreshold(s.Threshold)
		if err != nil {
			return nil, badArgs("safetySettings[%d]: %v", i, err)
		}
		out = append(out, &genai.SafetySetting{Category: cat, Threshold: th})
	}
	return out, nil
}

type functionDeclarationArgs struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

func convertDeclarations(in []functionDeclarationArgs) ([]*genai.FunctionDeclaration, error) {
	out := make([]*genai.FunctionDeclaration, 0, len(in))
	seen := make(map[string]bool, len(in))
	for i, d := range in {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, badArgs("functionDeclarations[%d]: name is required", i)
		}
		if seen[name] {
			return nil, badArgs("functionDeclarations[%d]: duplicate function %q", i, name)
		}
		seen[name] = true
		params, err := toGenaiSchema(d.Parameters)
		if err != nil {
			return nil, badArgs("functionDeclarations[%d] %s: %v", i, name, err)
		}
		out = append(out, &genai.FunctionDeclaration{Name: name, Description: d.Description, Parameters: params})
	}
	return out, nil
}

type toolConfigArgs struct {
	Mode                 string   `json:"mode"`
	AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
}

func (a *toolConfigArgs) convert() (*genai.ToolConfig, error) {
	if a == nil {
		return nil, nil
	}
	mode, err := gemini.ParseFunctionCallingMode(a.Mode)
	if err != nil {
		return nil, badArgs("toolConfig: %v", err)
	}
	return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{
		Mode:                 mode,
		AllowedFunctionNames: a.AllowedFunctionNames,
	}}, nil
}

// overrideArgs are the per-call knobs shared by every generating tool.
type overrideArgs struct {
	GenerationConfig *generationConfigArgs `json:"generationConfig,omitempty"`
	SafetySettings   []safetySettingArgs   `json:"safetySettings,omitempty"`
	ToolConfig       *toolConfigArgs       `json:"toolConfig,omitempty"`
}

func (a overrideArgs) convert() (gemini.Overrides, error) {
	var (
		o   gemini.Overrides
		err error
	)
	if o.GenerationConfig, err = a.GenerationConfig.convert(); err != nil {
		return o, err
	}
	if o.SafetySettings, err = convertSafety(a.SafetySettings); err != nil {
		return o, err
	}
	if o.ToolConfig, err = a.ToolConfig.convert(); err != nil {
		return o, err
	}
	return o, nil
}

// withDeclarations attaches declared functions as a replacement tool set.
func withDeclarations(o gemini.Overrides, decls []functionDeclarationArgs) (gemini.Overrides, error) {
	if len(decls) == 0 {
		return o, nil
	}
	fds, err := convertDeclarations(decls)
	if err != nil {
		return o, err
	}
	o.Tools = []*genai.Tool{{FunctionDeclarations: fds}}
	return o, nil
}

type functionCallArgs struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type functionResponseArgs struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type partArgs struct {
	Text             *string               `json:"text,omitempty"`
	FunctionCall     *functionCallArgs     `json:"functionCall,omitempty"`
	FunctionResponse *functionResponseArgs `json:"functionResponse,omitempty"`
}

// contentArgs is one turn. Text is shorthand for a single text part.
type contentArgs struct {
	Role  string     `json:"role"`
	Text  string     `json:"text,omitempty"`
	Parts []partArgs `json:"parts,omitempty"`
}

func convertContents(field string, in []contentArgs) ([]*genai.Content, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]*genai.Content, 0, len(in))
	for i, c := range in {
		role := strings.ToLower(strings.TrimSpace(c.Role))
		switch role {
		case "":
			role = "user"
		case "user", "model":
		default:
			return nil, badArgs("%s[%d]: role must be user or model, got %q", field, i, c.Role)
		}
		var parts []genai.Part
		if c.Text != "" {
			parts = append(parts, genai.Text(c.Text))
		}
		for j, p := range c.Parts {
			switch {
			case p.Text != nil:
				parts = append(parts, genai.Text(*p.Text))
			case p.FunctionCall != nil:
				parts = append(parts, genai.FunctionCall{Name: p.FunctionCall.Name, Args: p.FunctionCall.Args})
			case p.FunctionResponse != nil:
				parts = append(parts, genai.FunctionResponse{Name: p.FunctionResponse.Name, Response: p.FunctionResponse.Response})
			default:
				return nil, badArgs("%s[%d].parts[%d]: empty part", field, i, j)
			}
		}
		if len(parts) == 0 {
			return nil, badArgs("%s[%d]: no text or parts", field, i)
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	return out, nil
}

func systemInstruction(text string) *genai.Content {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return &genai.Content{Parts: []genai.Part{genai.Text(text)}}
}

// parseExpiry reads a cache lifetime given either as a duration ("300s",
// "1h") or as an RFC 3339 expiry time.
func parseExpiry(ttl, expireTime string) (time.Duration, time.Time, error) {
	var (
		d  time.Duration
		at time.Time
	)
	if ttl = strings.TrimSpace(ttl); ttl != "" {
		v, err := time.ParseDuration(ttl)
		if err != nil || v <= 0 {
			return 0, time.Time{}, badArgs("ttl: want a positive duration such as 3600s, got %q", ttl)
		}
		d = v
	}
	if expireTime = strings.TrimSpace(expireTime); expireTime != "" {
		v, err := time.Parse(time.RFC3339, expireTime)
		if err != nil {
			return 0, time.Time{}, badArgs("expireTime: %v", err)
		}
		at = v
	}
	if d > 0 && !at.IsZero() {
		return 0, time.Time{}, badArgs("set either ttl or expireTime, not both")
	}
	return d, at, nil
}
