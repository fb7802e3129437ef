package gemini

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"

	"github.com/Protocol-Lattice/gemini-mcp/src/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestService(defaultModel string) (*Service, *models.DummyTransport) {
	d := models.NewDummyTransport("")
	return NewService(d, Options{DefaultModel: defaultModel, Logger: quiet}), d
}

func TestGenerateWithoutModelMakesNoCall(t *testing.T) {
	svc, d := newTestService("")

	_, err := svc.Generate(context.Background(), "hi", CallOptions{})
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)

	_, err = svc.GenerateStream(context.Background(), "hi", CallOptions{})
	require.ErrorAs(t, err, &ce)

	_, err = svc.GenerateWithFunctions(context.Background(), "hi", []*genai.FunctionDeclaration{{Name: "f"}}, CallOptions{})
	require.ErrorAs(t, err, &ce)

	_, err = svc.StartChat(ChatOptions{})
	require.ErrorAs(t, err, &ce)

	assert.Empty(t, d.Calls())
}

func TestGenerateOverrideModelWins(t *testing.T) {
	svc, d := newTestService("default-model")

	_, err := svc.Generate(context.Background(), "a", CallOptions{Model: "override"})
	require.NoError(t, err)
	_, err = svc.Generate(context.Background(), "b", CallOptions{})
	require.NoError(t, err)
	_, err = svc.Generate(context.Background(), "c", CallOptions{Model: "override"})
	require.NoError(t, err)

	calls := d.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "override", calls[0].Params.Model)
	assert.Equal(t, "default-model", calls[1].Params.Model)
	assert.Equal(t, "override", calls[2].Params.Model)
}

func TestGenerateText(t *testing.T) {
	svc, d := newTestService("m")
	d.Reply(models.TextResponse("hello", genai.FinishReasonStop), nil)

	out, err := svc.Generate(context.Background(), "hi", CallOptions{
		SystemInstruction: genai.NewUserContent(genai.Text("be brief")),
		CachedContent:     "cachedContents/x",
		Overrides:         Overrides{GenerationConfig: &genai.GenerationConfig{Temperature: ptr[float32](0.1)}},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeText, out.Kind)
	assert.Equal(t, "hello", out.Text)

	p := d.Calls()[0].Params
	assert.Equal(t, "cachedContents/x", p.CachedContent)
	assert.NotNil(t, p.SystemInstruction)
	assert.Equal(t, float32(0.1), *p.GenerationConfig.Temperature)
}

func TestGenerateBlockedPromptReturnsSafetyError(t *testing.T) {
	svc, d := newTestService("m")
	d.Reply(nil, &genai.BlockedError{PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety}})

	out, err := svc.Generate(context.Background(), "bad", CallOptions{})
	var se *SafetyError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.PromptBlocked)
	assert.Equal(t, "SAFETY", se.Reason)
	assert.Equal(t, OutcomeBlocked, out.Kind)
	assert.Equal(t, "SAFETY", out.Reason)
}

func TestGenerateTransportFailure(t *testing.T) {
	svc, d := newTestService("m")
	cause := errors.New("connection reset")
	d.Reply(nil, cause)

	_, err := svc.Generate(context.Background(), "x", CallOptions{})
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, cause)

	// A 404 on generate is not a resource lookup.
	d.Reply(nil, &googleapi.Error{Code: 404})
	_, err = svc.Generate(context.Background(), "x", CallOptions{})
	assert.ErrorAs(t, err, &te)
}

func TestGenerateUnexpectedShape(t *testing.T) {
	svc, d := newTestService("m")
	d.Reply(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonOther}}}, nil)

	out, err := svc.Generate(context.Background(), "x", CallOptions{})
	var shape *UnexpectedResponseShapeError
	require.ErrorAs(t, err, &shape)
	assert.Equal(t, Outcome{}, out)
}

func TestGenerateWithFunctionsReturnsCall(t *testing.T) {
	svc, d := newTestService("m")
	d.Reply(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content:      &genai.Content{Parts: []genai.Part{genai.FunctionCall{Name: "lookup", Args: map[string]any{"q": "x"}}}},
		FinishReason: genai.FinishReasonStop,
	}}}, nil)

	extra := &genai.Tool{FunctionDeclarations: []*genai.FunctionDeclaration{{Name: "other"}}}
	opts := CallOptions{Overrides: Overrides{Tools: []*genai.Tool{extra}}}
	decl := &genai.FunctionDeclaration{Name: "lookup", Description: "find things"}
	out, err := svc.GenerateWithFunctions(context.Background(), "find x", []*genai.FunctionDeclaration{decl}, opts)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFunctionCalls, out.Kind)
	assert.Equal(t, []FunctionCall{{Name: "lookup", Args: map[string]any{"q": "x"}}}, out.FunctionCalls)

	tools := d.Calls()[0].Params.Tools
	require.Len(t, tools, 2)
	assert.Same(t, extra, tools[0])
	assert.Same(t, decl, tools[1].FunctionDeclarations[0])
	assert.Len(t, opts.Tools, 1, "caller tools must not be mutated")

	_, err = svc.GenerateWithFunctions(context.Background(), "x", nil, CallOptions{})
	var ce *ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestGenerateCachedContentConflicts(t *testing.T) {
	svc, d := newTestService("m")
	ctx := context.Background()
	cached := CallOptions{CachedContent: "cachedContents/abc"}

	withSystem := cached
	withSystem.SystemInstruction = genai.NewUserContent(genai.Text("sys"))
	withTools := cached
	withTools.Tools = []*genai.Tool{{FunctionDeclarations: []*genai.FunctionDeclaration{{Name: "f"}}}}
	withToolConfig := cached
	withToolConfig.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingNone}}

	for name, opts := range map[string]CallOptions{
		"systemInstruction": withSystem,
		"tools":             withTools,
		"toolConfig":        withToolConfig,
	} {
		_, err := svc.Generate(ctx, "hi", opts)
		var ce *ConfigurationError
		require.ErrorAs(t, err, &ce, name)
		assert.Contains(t, ce.Message, name)
	}

	_, err := svc.GenerateWithFunctions(ctx, "hi", []*genai.FunctionDeclaration{{Name: "f"}}, cached)
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Empty(t, d.Calls())

	out, err := svc.Generate(ctx, "hi", cached)
	require.NoError(t, err)
	assert.Equal(t, OutcomeText, out.Kind)
	assert.Equal(t, "cachedContents/abc", d.Calls()[0].Params.CachedContent)
}

func TestChatHelloScenario(t *testing.T) {
	svc, d := newTestService("")
	d.Reply(models.TextResponse("hello", genai.FinishReasonStop), nil)

	id, err := svc.StartChat(ChatOptions{Model: "m1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	out, err := svc.SendMessage(context.Background(), id, "hi", Overrides{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeText, out.Kind)
	assert.Equal(t, "hello", out.Text)

	calls := d.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "chat", calls[0].Kind)
	assert.Equal(t, "m1", calls[0].Params.Model)

	history, err := svc.History(id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
}

func TestChatUnknownSession(t *testing.T) {
	svc, d := newTestService("m")

	_, err := svc.SendMessage(context.Background(), "bogus", "hi", Overrides{})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, NotFoundError{Kind: "session", ID: "bogus"}, *nf)

	_, err = svc.SendFunctionResult(context.Background(), "bogus", []FunctionResult{{Name: "f"}}, Overrides{})
	require.ErrorAs(t, err, &nf)

	require.ErrorAs(t, svc.EndChat("bogus"), &nf)
	_, err = svc.History("bogus")
	require.ErrorAs(t, err, &nf)

	assert.Empty(t, d.Calls())
}

func TestChatSessionsAreIsolated(t *testing.T) {
	svc, d := newTestService("m")
	a, err := svc.StartChat(ChatOptions{})
	require.NoError(t, err)
	b, err := svc.StartChat(ChatOptions{Model: "other"})
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	_, err = svc.SendMessage(context.Background(), a, "one", Overrides{})
	require.NoError(t, err)
	_, err = svc.SendMessage(context.Background(), a, "two", Overrides{})
	require.NoError(t, err)

	ha, err := svc.History(a)
	require.NoError(t, err)
	hb, err := svc.History(b)
	require.NoError(t, err)
	assert.Len(t, ha, 4)
	assert.Empty(t, hb)

	_, err = svc.SendMessage(context.Background(), b, "three", Overrides{})
	require.NoError(t, err)
	calls := d.Calls()
	assert.Equal(t, "m", calls[1].Params.Model)
	assert.Equal(t, "other", calls[2].Params.Model)
	assert.Empty(t, calls[2].History)
}

func TestChatSessionDefaultsAndOverrides(t *testing.T) {
	svc, d := newTestService("m")
	id, err := svc.StartChat(ChatOptions{
		SystemInstruction: genai.NewUserContent(genai.Text("sys")),
		Overrides: Overrides{
			GenerationConfig: &genai.GenerationConfig{Temperature: ptr[float32](0.3), TopP: ptr[float32](0.5)},
		},
	})
	require.NoError(t, err)

	_, err = svc.SendMessage(context.Background(), id, "x", Overrides{GenerationConfig: &genai.GenerationConfig{Temperature: ptr[float32](1)}})
	require.NoError(t, err)
	_, err = svc.SendMessage(context.Background(), id, "y", Overrides{})
	require.NoError(t, err)

	calls := d.Calls()
	assert.Equal(t, float32(1), *calls[0].Params.GenerationConfig.Temperature)
	assert.Equal(t, float32(0.5), *calls[0].Params.GenerationConfig.TopP)
	assert.Equal(t, float32(0.3), *calls[1].Params.GenerationConfig.Temperature)
	assert.NotNil(t, calls[1].Params.SystemInstruction)
}

func TestChatFailedTurnLeavesHistory(t *testing.T) {
	svc, d := newTestService("m")
	id, err := svc.StartChat(ChatOptions{})
	require.NoError(t, err)

	d.Reply(nil, errors.New("unavailable"))
	_, err = svc.SendMessage(context.Background(), id, "x", Overrides{})
	var te *TransportError
	require.ErrorAs(t, err, &te)

	h, err := svc.History(id)
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestChatConcurrentSendsAreSerialized(t *testing.T) {
	svc, d := newTestService("m")
	id, err := svc.StartChat(ChatOptions{})
	require.NoError(t, err)

	const n = 50
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			msg := fmt.Sprintf("message %d", i)
			out, err := svc.SendMessage(context.Background(), id, msg, Overrides{})
			if err != nil {
				return err
			}
			if want := "Dummy response: " + msg; out.Text != want {
				return fmt.Errorf("reply %q, want %q", out.Text, want)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	history, err := svc.History(id)
	require.NoError(t, err)
	require.Len(t, history, 2*n)
	for i := 0; i < len(history); i += 2 {
		user, model := history[i], history[i+1]
		require.Equal(t, "user", user.Role, "history[%d]", i)
		require.Equal(t, "model", model.Role, "history[%d]", i+1)
		msg, ok := user.Parts[0].(genai.Text)
		require.True(t, ok)
		assert.Equal(t, genai.Text("Dummy response: "+string(msg)), model.Parts[0], "turn %d", i/2)
	}

	// Each send observed the history left by the previous one.
	seen := make([]int, 0, n)
	for _, c := range d.Calls() {
		seen = append(seen, len(c.History))
	}
	slices.Sort(seen)
	for i, l := range seen {
		assert.Equal(t, 2*i, l)
	}
}

func TestChatEmptyReplyIsNotRecorded(t *testing.T) {
	svc, d := newTestService("m")
	id, err := svc.StartChat(ChatOptions{})
	require.NoError(t, err)

	d.Reply(&genai.GenerateContentResponse{}, nil)
	out, err := svc.SendMessage(context.Background(), id, "a", Overrides{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmpty, out.Kind)

	_, err = svc.SendMessage(context.Background(), id, "b", Overrides{})
	require.NoError(t, err)

	history, err := svc.History(id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, []genai.Part{genai.Text("b")}, history[0].Parts)
	assert.Equal(t, "model", history[1].Role)
}

func TestSendFunctionResult(t *testing.T) {
	svc, d := newTestService("m")
	id, err := svc.StartChat(ChatOptions{})
	require.NoError(t, err)
	d.Reply(models.TextResponse("it is sunny", genai.FinishReasonStop), nil)

	out, err := svc.SendFunctionResult(context.Background(), id, []FunctionResult{
		{Name: "weather", Response: map[string]any{"sky": "clear"}},
	}, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "it is sunny", out.Text)

	parts := d.Calls()[0].Parts
	require.Len(t, parts, 1)
	assert.Equal(t, genai.FunctionResponse{Name: "weather", Response: map[string]any{"sky": "clear"}}, parts[0])

	_, err = svc.SendFunctionResult(context.Background(), id, nil, Overrides{})
	var ce *ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestEndChat(t *testing.T) {
	svc, _ := newTestService("m")
	id, err := svc.StartChat(ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, svc.Sessions().Len())

	require.NoError(t, svc.EndChat(id))
	_, err = svc.SendMessage(context.Background(), id, "x", Overrides{})
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}
