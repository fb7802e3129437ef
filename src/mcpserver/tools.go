package mcpserver

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Protocol-Lattice/gemini-mcp/src/gemini"
)

// JSON Schema fragments shared by several tool definitions.
var (
	generationConfigSchema = map[string]any{
		"temperature":      map[string]any{"type": "number", "minimum": 0, "maximum": 2},
		"topP":             map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"topK":             map[string]any{"type": "integer", "minimum": 1},
		"maxOutputTokens":  map[string]any{"type": "integer", "minimum": 1},
		"candidateCount":   map[string]any{"type": "integer", "minimum": 1},
		"stopSequences":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"responseMimeType": map[string]any{"type": "string", "enum": []string{"text/plain", "application/json"}},
		"responseSchema":   map[string]any{"type": "object", "description": "JSON Schema for structured output"},
	}
	safetySettingSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"category": map[string]any{"type": "string", "enum": []string{
				"HARM_CATEGORY_HARASSMENT", "HARM_CATEGORY_HATE_SPEECH",
				"HARM_CATEGORY_SEXUALLY_EXPLICIT", "HARM_CATEGORY_DANGEROUS_CONTENT",
			}},
			"threshold": map[string]any{"type": "string", "enum": []string{
				"BLOCK_NONE", "BLOCK_ONLY_HIGH", "BLOCK_MEDIUM_AND_ABOVE", "BLOCK_LOW_AND_ABOVE",
			}},
		},
		"required": []string{"category", "threshold"},
	}
	functionDeclarationSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":        map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"parameters":  map[string]any{"type": "object", "description": "JSON Schema of the function arguments"},
		},
		"required": []string{"name"},
	}
	toolConfigSchema = map[string]any{
		"mode":                 map[string]any{"type": "string", "enum": []string{"AUTO", "ANY", "NONE"}},
		"allowedFunctionNames": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	}
	contentSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"role": map[string]any{"type": "string", "enum": []string{"user", "model"}},
			"text": map[string]any{"type": "string"},
			"parts": map[string]any{"type": "array", "items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text":             map[string]any{"type": "string"},
					"functionCall":     map[string]any{"type": "object"},
					"functionResponse": map[string]any{"type": "object"},
				},
			}},
		},
		"required": []string{"role"},
	}
)

func overrideOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithObject("generationConfig",
			mcp.Description("Sampling parameters; unset fields inherit session defaults."),
			mcp.Properties(generationConfigSchema),
		),
		mcp.WithArray("safetySettings",
			mcp.Description("Block thresholds per harm category."),
			mcp.Items(safetySettingSchema),
		),
		mcp.WithObject("toolConfig",
			mcp.Description("Function calling mode."),
			mcp.Properties(toolConfigSchema),
		),
	}
}

func defineTool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	return mcp.NewTool(name, append([]mcp.ToolOption{mcp.WithDescription(description)}, opts...)...)
}

func join(groups ...[]mcp.ToolOption) []mcp.ToolOption {
	var out []mcp.ToolOption
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func (s *Server) tools() []toolDef {
	model := mcp.WithString("model", mcp.Description("Model name; defaults to GOOGLE_GEMINI_MODEL."))
	system := mcp.WithString("systemInstruction", mcp.Description("System instruction text."))
	decls := func(required bool) mcp.ToolOption {
		opts := []mcp.PropertyOption{mcp.Description("Functions the model may call."), mcp.Items(functionDeclarationSchema)}
		if required {
			opts = append(opts, mcp.Required())
		}
		return mcp.WithArray("functionDeclarations", opts...)
	}
	sessionID := mcp.WithString("sessionId", mcp.Required(), mcp.Description("Id returned by gemini_startChat."))
	limit := mcp.WithNumber("limit", mcp.Description("Maximum number of entries; all when omitted."), mcp.Min(1))
	fileName := mcp.WithString("name", mcp.Required(), mcp.Description("File name, e.g. files/abc123."))
	cacheName := mcp.WithString("name", mcp.Required(), mcp.Description("Cache name, e.g. cachedContents/abc123."))
	ttl := mcp.WithString("ttl", mcp.Description("Lifetime as a duration, e.g. 3600s."))
	expire := mcp.WithString("expireTime", mcp.Description("Absolute expiry, RFC 3339."))

	return []toolDef{
		{defineTool("gemini_generateContent", "Generate a response to a single prompt.", join(
			[]mcp.ToolOption{
				mcp.WithString("prompt", mcp.Required(), mcp.Description("Prompt text.")),
				model, system,
				mcp.WithString("cachedContentName", mcp.Description("Generate against this cached content.")),
			},
			overrideOptions(),
			[]mcp.ToolOption{mcp.WithReadOnlyHintAnnotation(true)},
		)...), s.generateContent},
		{defineTool("gemini_generateContentStream", "Generate a response with streaming; fragments are sent as progress notifications and the full text is returned.", join(
			[]mcp.ToolOption{
				mcp.WithString("prompt", mcp.Required(), mcp.Description("Prompt text.")),
				model, system,
				mcp.WithString("cachedContentName", mcp.Description("Generate against this cached content.")),
			},
			overrideOptions(),
			[]mcp.ToolOption{mcp.WithReadOnlyHintAnnotation(true)},
		)...), s.generateContentStream},
		{defineTool("gemini_functionCall", "Let the model choose functions to call for a prompt. Returns the calls instead of running them.", join(
			[]mcp.ToolOption{
				mcp.WithString("prompt", mcp.Required(), mcp.Description("Prompt text.")),
				decls(true), model, system,
			},
			overrideOptions(),
			[]mcp.ToolOption{mcp.WithReadOnlyHintAnnotation(true)},
		)...), s.functionCall},
		{defineTool("gemini_startChat", "Start a multi-turn chat session and return its id.", join(
			[]mcp.ToolOption{
				model, system,
				mcp.WithArray("history", mcp.Description("Earlier turns to seed the session with."), mcp.Items(contentSchema)),
				decls(false),
			},
			overrideOptions(),
		)...), s.startChat},
		{defineTool("gemini_sendMessage", "Send a message in a chat session.", join(
			[]mcp.ToolOption{
				sessionID,
				mcp.WithString("message", mcp.Required(), mcp.Description("Message text.")),
				decls(false),
			},
			overrideOptions(),
		)...), s.sendMessage},
		{defineTool("gemini_sendFunctionResult", "Return function results to a chat session after the model requested calls.", join(
			[]mcp.ToolOption{
				sessionID,
				mcp.WithArray("functionResponses", mcp.Required(), mcp.Description("One entry per call answered."), mcp.Items(map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":     map[string]any{"type": "string"},
						"response": map[string]any{"type": "object"},
					},
					"required": []string{"name", "response"},
				})),
			},
			overrideOptions(),
		)...), s.sendFunctionResult},
		{defineTool("gemini_endChat", "End a chat session and discard its history.",
			sessionID, mcp.WithDestructiveHintAnnotation(true),
		), s.endChat},
		{defineTool("gemini_uploadFile", "Upload a local file to the Gemini Files API.",
			mcp.WithString("filePath", mcp.Required(), mcp.Description("Path of the file on this machine.")),
			mcp.WithString("displayName", mcp.Description("Defaults to the file's base name.")),
			mcp.WithString("mimeType", mcp.Description("Detected from the file when omitted.")),
		), s.uploadFile},
		{defineTool("gemini_listFiles", "List uploaded files.", limit, mcp.WithReadOnlyHintAnnotation(true)), s.listFiles},
		{defineTool("gemini_getFile", "Get metadata of an uploaded file.", fileName, mcp.WithReadOnlyHintAnnotation(true)), s.getFile},
		{defineTool("gemini_deleteFile", "Delete an uploaded file.", fileName, mcp.WithDestructiveHintAnnotation(true)), s.deleteFile},
		{defineTool("gemini_createCache", "Cache content for reuse across generate calls.",
			model, system,
			mcp.WithArray("contents", mcp.Description("Content to cache."), mcp.Items(contentSchema)),
			decls(false),
			mcp.WithObject("toolConfig", mcp.Description("Function calling mode."), mcp.Properties(toolConfigSchema)),
			ttl, expire,
		), s.createCache},
		{defineTool("gemini_listCaches", "List cached contents.", limit, mcp.WithReadOnlyHintAnnotation(true)), s.listCaches},
		{defineTool("gemini_getCache", "Get metadata of cached content.", cacheName, mcp.WithReadOnlyHintAnnotation(true)), s.getCache},
		{defineTool("gemini_updateCache", "Change the expiry of cached content. Set exactly one of ttl and expireTime.", cacheName, ttl, expire), s.updateCache},
		{defineTool("gemini_deleteCache", "Delete cached content.", cacheName, mcp.WithDestructiveHintAnnotation(true)), s.deleteCache},
	}
}

// ---------------------------- Generation --------------------------------------

type generateArgs struct {
	overrideArgs
	Prompt            string `json:"prompt"`
	Model             string `json:"model,omitempty"`
	SystemInstruction string `json:"systemInstruction,omitempty"`
	CachedContentName string `json:"cachedContentName,omitempty"`
}

func (a generateArgs) callOptions() (gemini.CallOptions, error) {
	if strings.TrimSpace(a.Prompt) == "" {
		return gemini.CallOptions{}, badArgs("prompt is required")
	}
	o, err := a.overrideArgs.convert()
	if err != nil {
		return gemini.CallOptions{}, err
	}
	return gemini.CallOptions{
		Overrides:         o,
		Model:             a.Model,
		SystemInstruction: systemInstruction(a.SystemInstruction),
		CachedContent:     a.CachedContentName,
	}, nil
}

func (s *Server) generateContent(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	args, err := bind[generateArgs](req)
	if err != nil {
		return nil, err
	}
	opts, err := args.callOptions()
	if err != nil {
		return nil, err
	}
	out, err := s.svc.Generate(ctx, args.Prompt, opts)
	if err != nil {
		return nil, err
	}
	return newOutcomePayload(out, ""), nil
}

func (s *Server) generateContentStream(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	args, err := bind[generateArgs](req)
	if err != nil {
		return nil, err
	}
	opts, err := args.callOptions()
	if err != nil {
		return nil, err
	}
	ch, err := s.svc.GenerateStream(ctx, args.Prompt, opts)
	if err != nil {
		return nil, err
	}

	notify := s.progressNotifier(ctx, req)
	var final gemini.StreamChunk
	n := 0
	for chunk := range ch {
		if chunk.Done {
			final = chunk
			continue
		}
		n++
		notify(n, chunk.Delta)
	}
	if final.Err != nil {
		return nil, final.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, &gemini.TransportError{Message: "stream cancelled", Cause: err}
	}
	text := final.FullText
	return outcomePayload{Kind: gemini.OutcomeText.String(), Text: &text}, nil
}

// progressNotifier forwards stream fragments to clients that asked for
// progress by sending a progress token.
func (s *Server) progressNotifier(ctx context.Context, req mcp.CallToolRequest) func(n int, delta string) {
	noop := func(int, string) {}
	if req.Params.Meta == nil || req.Params.Meta.ProgressToken == nil {
		return noop
	}
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return noop
	}
	token := req.Params.Meta.ProgressToken
	return func(n int, delta string) {
		err := srv.SendNotificationToClient(ctx, "notifications/progress", map[string]any{
			"progressToken": token,
			"progress":      n,
			"message":       delta,
		})
		if err != nil {
			s.logger.Debug("progress notification dropped", "error", err)
		}
	}
}

type functionCallToolArgs struct {
	generateArgs
	FunctionDeclarations []functionDeclarationArgs `json:"functionDeclarations"`
}

func (s *Server) functionCall(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	args, err := bind[functionCallToolArgs](req)
	if err != nil {
		return nil, err
	}
	opts, err := args.callOptions()
	if err != nil {
		return nil, err
	}
	if len(args.FunctionDeclarations) == 0 {
		return nil, badArgs("functionDeclarations must list at least one function")
	}
	fds, err := convertDeclarations(args.FunctionDeclarations)
	if err != nil {
		return nil, err
	}
	out, err := s.svc.GenerateWithFunctions(ctx, args.Prompt, fds, opts)
	if err != nil {
		return nil, err
	}
	return newOutcomePayload(out, ""), nil
}

// ---------------------------- Chat --------------------------------------------

type startChatArgs struct {
	overrideArgs
	Model                string                    `json:"model,omitempty"`
	SystemInstruction    string                    `json:"systemInstruction,omitempty"`
	History              []contentArgs             `json:"history,omitempty"`
	FunctionDeclarations []functionDeclarationArgs `json:"functionDeclarations,omitempty"`
}

type sessionPayload struct {
	SessionID string `json:"sessionId"`
	Model     string `json:"model,omitempty"`
	Ended     bool   `json:"ended,omitempty"`
}

func (s *Server) startChat(_ context.Context, req mcp.CallToolRequest) (any, error) {
	args, err := bind[startChatArgs](req)
	if err != nil {
		return nil, err
	}
	o, err := args.overrideArgs.convert()
	if err != nil {
		return nil, err
	}
	if o, err = withDeclarations(o, args.FunctionDeclarations); err != nil {
		return nil, err
	}
	history, err := convertContents("history", args.History)
	if err != nil {
		return nil, err
	}
	id, err := s.svc.StartChat(gemini.ChatOptions{
		Overrides:         o,
		Model:             args.Model,
		History:           history,
		SystemInstruction: systemInstruction(args.SystemInstruction),
	})
	if err != nil {
		return nil, err
	}
	p := sessionPayload{SessionID: id}
	if sess, err := s.svc.Sessions().Lookup(id); err == nil {
		p.Model = sess.Model()
	}
	return p, nil
}

type sendMessageArgs struct {
	overrideArgs
	SessionID            string                    `json:"sessionId"`
	Message              string                    `json:"message"`
	FunctionDeclarations []functionDeclarationArgs `json:"functionDeclarations,omitempty"`
}

func (s *Server) sendMessage(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	args, err := bind[sendMessageArgs](req)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Message) == "" {
		return nil, badArgs("message is required")
	}
	o, err := args.overrideArgs.convert()
	if err != nil {
		return nil, err
	}
	if o, err = withDeclarations(o, args.FunctionDeclarations); err != nil {
		return nil, err
	}
	out, err := s.svc.SendMessage(ctx, args.SessionID, args.Message, o)
	if err != nil {
		return nil, err
	}
	return newOutcomePayload(out, args.SessionID), nil
}

type sendFunctionResultArgs struct {
	overrideArgs
	SessionID         string                 `json:"sessionId"`
	FunctionResponses []functionResponseArgs `json:"functionResponses"`
}

func (s *Server) sendFunctionResult(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	args, err := bind[sendFunctionResultArgs](req)
	if err != nil {
		return nil, err
	}
	o, err := args.overrideArgs.convert()
	if err != nil {
		return nil, err
	}
	results := make([]gemini.FunctionResult, 0, len(args.FunctionResponses))
	for i, r := range args.FunctionResponses {
		if strings.TrimSpace(r.Name) == "" {
			return nil, badArgs("functionResponses[%d]: name is required", i)
		}
		results = append(results, gemini.FunctionResult{Name: r.Name, Response: r.Response})
	}
	out, err := s.svc.SendFunctionResult(ctx, args.SessionID, results, o)
	if err != nil {
		return nil, err
	}
	return newOutcomePayload(out, args.SessionID), nil
}

type sessionArgs struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) endChat(_ context.Context, req mcp.CallToolRequest) (any, error) {
	args, err := bind[sessionArgs](req)
	if err != nil {
		return nil, err
	}
	if err := s.svc.EndChat(args.SessionID); err != nil {
		return nil, err
	}
	return sessionPayload{SessionID: args.SessionID, Ended: true}, nil
}

// ---------------------------- Files -------------------------------------------

type uploadArgs struct {
	FilePath    string `json:"filePath"`
	DisplayName string `json:"displayName,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
}

type nameArgs struct {
	Name string `json:"name"`
}

func (a nameArgs) required() (string, error) {
	if strings.TrimSpace(a.Name) == "" {
		return "", badArgs("name is required")
	}
	return a.Name, nil
}

type listArgs struct {
	Limit int `json:"limit,omitempty"`
}

type deletedPayload struct {
	Name    string `json:"name"`
	Deleted bool   `json:"deleted"`
}

func (s *Server) uploadFile(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	args, err := bind[uploadArgs](req)
	if err != nil {
		return nil, err
	}
	return s.svc.UploadFile(ctx, args.FilePath, args.DisplayName, args.MIMEType)
}

func (s *Server) listFiles(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	args, err := bind[listArgs](req)
	if err != nil {
		return nil, err
	}
	files, err := s.svc.ListFiles(ctx, args.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"files": files}, nil
}

func (s *Server) getFile(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	args, err := bind[nameArgs](req)
	if err != nil {
		return nil, err
	}
	name, err := args.required()
	if err != nil {
		return nil, err
	}
	return s.svc.GetFile(ctx, name)
}

func (s *Server) deleteFile(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	args, err := bind[nameArgs](req)
	if err != nil {
		return nil, err
	}
	name, err := args.required()
	if err != nil {
		return nil, err
	}
	if err := s.svc.DeleteFile(ctx, name); err != nil {
		return nil, err
	}
	return deletedPayload{Name: name, Deleted: true}, nil
}

// ---------------------------- Cached content ----------------------------------

type createCacheArgs struct {
	Model                string                    `json:"model,omitempty"`
	SystemInstruction    string                    `json:"systemInstruction,omitempty"`
	Contents             []contentArgs             `json:"contents,omitempty"`
	FunctionDeclarations []functionDeclarationArgs `json:"functionDeclarations,omitempty"`
	ToolConfig           *toolConfigArgs           `json:"toolConfig,omitempty"`
	TTL                  string                    `json:"ttl,omitempty"`
	ExpireTime           string                    `json:"expireTime,omitempty"`
}

type updateCacheArgs struct {
	nameArgs
	TTL        string `json:"ttl,omitempty"`
	ExpireTime string `json:"expireTime,omitempty"`
}

func (s *Server) createCache(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	args, err := bind[createCacheArgs](req)
	if err != nil {
		return nil, err
	}
	ttl, at, err := parseExpiry(args.TTL, args.ExpireTime)
	if err != nil {
		return nil, err
	}
	contents, err := convertContents("contents", args.Contents)
	if err != nil {
		return nil, err
	}
	o, err := withDeclarations(gemini.Overrides{}, args.FunctionDeclarations)
	if err != nil {
		return nil, err
	}
	tc, err := args.ToolConfig.convert()
	if err != nil {
		return nil, err
	}
	return s.svc.CreateCache(ctx, gemini.CacheRequest{
		Model:             args.Model,
		Contents:          contents,
		SystemInstruction: systemInstruction(args.SystemInstruction),
		Tools:             o.Tools,
		ToolConfig:        tc,
		TTL:               ttl,
		ExpireTime:        at,
	})
}

func (s *Server) listCaches(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	args, err := bind[listArgs](req)
	if err != nil {
		return nil, err
	}
	caches, err := s.svc.ListCaches(ctx, args.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"caches": caches}, nil
}

func (s *Server) getCache(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	args, err := bind[nameArgs](req)
	if err != nil {
		return nil, err
	}
	name, err := args.required()
	if err != nil {
		return nil, err
	}
	return s.svc.GetCache(ctx, name)
}

func (s *Server) updateCache(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	args, err := bind[updateCacheArgs](req)
	if err != nil {
		return nil, err
	}
	name, err := args.required()
	if err != nil {
		return nil, err
	}
	ttl, at, err := parseExpiry(args.TTL, args.ExpireTime)
	if err != nil {
		return nil, err
	}
	return s.svc.UpdateCache(ctx, name, ttl, at)
}

func (s *Server) deleteCache(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	args, err := bind[nameArgs](req)
	if err != nil {
		return nil, err
	}
	name, err := args.required()
	if err != nil {
		return nil, err
	}
	if err := s.svc.DeleteCache(ctx, name); err != nil {
		return nil, err
	}
	return deletedPayload{Name: name, Deleted: true}, nil
}
