package mcpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Protocol-Lattice/gemini-mcp/src/gemini"
)

// outcomePayload is the JSON body of every generating tool.
type outcomePayload struct {
	Kind          string                `json:"kind"`
	Text          *string               `json:"text,omitempty"`
	FunctionCalls []gemini.FunctionCall `json:"functionCalls,omitempty"`
	FinishReason  string                `json:"finishReason,omitempty"`
	Usage         *gemini.Usage         `json:"usage,omitempty"`
	SessionID     string                `json:"sessionId,omitempty"`
}

func newOutcomePayload(out gemini.Outcome, sessionID string) outcomePayload {
	p := outcomePayload{
		Kind:          out.Kind.String(),
		FunctionCalls: out.FunctionCalls,
		FinishReason:  out.FinishReason,
		Usage:         out.Usage,
		SessionID:     sessionID,
	}
	if out.Kind == gemini.OutcomeText {
		text := out.Text
		p.Text = &text
	}
	return p
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// errorKind names the taxonomy member err belongs to.
func errorKind(err error) string {
	var (
		ce *gemini.ConfigurationError
		nf *gemini.NotFoundError
		se *gemini.SafetyError
		te *gemini.TransportError
		ue *gemini.UnexpectedResponseShapeError
		ae *argumentError
	)
	switch {
	case errors.As(err, &ae):
		return "InvalidArgument"
	case errors.As(err, &ce):
		return "ConfigurationError"
	case errors.As(err, &nf):
		return "NotFoundError"
	case errors.As(err, &se):
		return "SafetyError"
	case errors.As(err, &te):
		return "TransportError"
	case errors.As(err, &ue):
		return "UnexpectedResponseShapeError"
	}
	return "InternalError"
}

// errorResult renders err as an isError tool result whose text starts with
// the error kind. Safety errors list the ratings that triggered them.
func errorResult(err error) *mcp.CallToolResult {
	var b strings.Builder
	b.WriteString(errorKind(err))
	b.WriteString(": ")
	b.WriteString(err.Error())

	var se *gemini.SafetyError
	if errors.As(err, &se) && len(se.Ratings) > 0 {
		b.WriteString("\nratings:")
		for _, r := range se.Ratings {
			fmt.Fprintf(&b, "\n- %s: %s", r.Category, r.Probability)
			if r.Blocked {
				b.WriteString(" (blocked)")
			}
		}
	}
	return mcp.NewToolResultError(b.String())
}
