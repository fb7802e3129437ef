package gemini

import (
	"context"
	"errors"
	"testing"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/gemini-mcp/src/models"
)

func TestGenerateStreamCollectsText(t *testing.T) {
	svc, d := newTestService("m")
	d.ReplyStream(
		models.DummyReply{Response: models.TextResponse("Hel", genai.FinishReasonUnspecified)},
		models.DummyReply{Response: models.TextResponse("lo", genai.FinishReasonUnspecified)},
		models.DummyReply{Response: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonStop}}}},
	)

	ch, err := svc.GenerateStream(context.Background(), "hi", CallOptions{})
	require.NoError(t, err)

	var deltas []string
	var last StreamChunk
	for c := range ch {
		if c.Done {
			last = c
			continue
		}
		deltas = append(deltas, c.Delta)
	}
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.True(t, last.Done)
	assert.NoError(t, last.Err)
	assert.Equal(t, "Hello", last.FullText)
	assert.Equal(t, "stream", d.Calls()[0].Kind)
}

func TestGenerateStreamDefaultEcho(t *testing.T) {
	svc, _ := newTestService("m")
	ch, err := svc.GenerateStream(context.Background(), "ping", CallOptions{})
	require.NoError(t, err)

	text, err := CollectStream(ch)
	require.NoError(t, err)
	assert.Equal(t, "Dummy response: ping", text)
}

func TestGenerateStreamSafetyStopMidStream(t *testing.T) {
	svc, d := newTestService("m")
	stopped := &genai.Candidate{FinishReason: genai.FinishReasonSafety}
	d.ReplyStream(
		models.DummyReply{Response: models.TextResponse("partial ", genai.FinishReasonUnspecified)},
		models.DummyReply{Err: &genai.BlockedError{Candidate: stopped}},
		models.DummyReply{Response: models.TextResponse("never", genai.FinishReasonStop)},
	)

	ch, err := svc.GenerateStream(context.Background(), "x", CallOptions{})
	require.NoError(t, err)

	text, err := CollectStream(ch)
	var se *SafetyError
	require.ErrorAs(t, err, &se)
	assert.False(t, se.PromptBlocked)
	assert.Equal(t, "partial ", text)
}

func TestGenerateStreamTransportError(t *testing.T) {
	svc, d := newTestService("m")
	d.ReplyStream(models.DummyReply{Err: errors.New("stream reset")})

	ch, err := svc.GenerateStream(context.Background(), "x", CallOptions{})
	require.NoError(t, err)
	_, err = CollectStream(ch)
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestGenerateStreamCancellationStopsProducer(t *testing.T) {
	svc, d := newTestService("m")
	chunks := make([]models.DummyReply, 100)
	for i := range chunks {
		chunks[i] = models.DummyReply{Response: models.TextResponse("w ", genai.FinishReasonUnspecified)}
	}
	d.ReplyStream(chunks...)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := svc.GenerateStream(ctx, "x", CallOptions{})
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "w ", first.Delta)
	cancel()

	n := 0
	for range ch {
		n++
	}
	assert.Less(t, n, 99, "producer kept going after cancellation")
}
