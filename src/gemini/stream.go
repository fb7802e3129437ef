package gemini

import (
	"context"
	"errors"
	"strings"
	"time"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"

	"github.com/Protocol-Lattice/gemini-mcp/src/models"
)

// StreamChunk is one step of a streamed generation. The last chunk has Done
// set and carries either FullText or Err.
type StreamChunk struct {
	Delta    string
	FullText string
	Done     bool
	Err      error
}

// GenerateStream starts a streamed generation. Configuration errors are
// returned directly; provider failures and safety stops arrive as a final
// chunk with Err set. The channel is unbuffered: the next provider chunk is
// only fetched after the previous fragment was received. Cancel ctx to
// abandon the stream early.
func (s *Service) GenerateStream(ctx context.Context, prompt string, opts CallOptions) (<-chan StreamChunk, error) {
	params, err := s.callParams(opts)
	if err != nil {
		return nil, err
	}
	it := s.transport.GenerateContentStream(ctx, params, genai.Text(prompt))

	ch := make(chan StreamChunk)
	go s.pump(ctx, it, params.Model, ch)
	return ch, nil
}

func (s *Service) pump(ctx context.Context, it models.ResponseIterator, model string, ch chan<- StreamChunk) {
	defer close(ch)

	log := s.logger.With("op", "stream", "model", model)
	start := time.Now()
	var full strings.Builder

	send := func(c StreamChunk) bool {
		select {
		case ch <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		log.Warn("gemini stream aborted", "error", err, "elapsed", time.Since(start))
		send(StreamChunk{Done: true, FullText: full.String(), Err: err})
	}

	for {
		resp, err := it.Next()
		if errors.Is(err, iterator.Done) {
			log.Debug("gemini stream completed", "elapsed", time.Since(start), "chars", full.Len())
			send(StreamChunk{Done: true, FullText: full.String()})
			return
		}
		resp, err = unfoldBlocked(resp, err)
		if err != nil {
			fail(translateError(err, "", ""))
			return
		}

		out, err := Normalize(resp)
		if err != nil {
			log.Error("gemini stream chunk has an unexpected shape", "raw", rawResponse(resp))
			fail(err)
			return
		}

		switch out.Kind {
		case OutcomeBlocked, OutcomeSafetyStopped:
			fail(safetyErrorFrom(out))
			return
		case OutcomeFunctionCalls:
			log.Warn("ignoring function call in text stream", "calls", len(out.FunctionCalls))
		case OutcomeText:
			if out.Text == "" {
				continue
			}
			full.WriteString(out.Text)
			if !send(StreamChunk{Delta: out.Text}) {
				return
			}
		}
	}
}

// CollectStream drains ch and returns the full text or the first error.
func CollectStream(ch <-chan StreamChunk) (string, error) {
	var text string
	for chunk := range ch {
		if chunk.Err != nil {
			return chunk.FullText, chunk.Err
		}
		if chunk.Done {
			text = chunk.FullText
		}
	}
	return text, nil
}
