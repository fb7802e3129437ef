package gemini

import (
	"strings"

	genai "github.com/google/generative-ai-go/genai"
)

// OutcomeKind tags which field of an Outcome is populated.
type OutcomeKind int

const (
	OutcomeEmpty OutcomeKind = iota
	OutcomeText
	OutcomeFunctionCalls
	OutcomeBlocked
	OutcomeSafetyStopped
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeText:
		return "text"
	case OutcomeFunctionCalls:
		return "function_calls"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeSafetyStopped:
		return "safety_stopped"
	default:
		return "empty"
	}
}

// FunctionCall is a model request to run a named function.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// SafetyRating is the provider's verdict for one harm category.
type SafetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
	Blocked     bool   `json:"blocked,omitempty"`
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	PromptTokens    int32 `json:"promptTokens"`
	CandidateTokens int32 `json:"candidateTokens"`
	CachedTokens    int32 `json:"cachedTokens,omitempty"`
	TotalTokens     int32 `json:"totalTokens"`
}

// Outcome is the normalized reading of one provider response. Kind selects
// the meaningful field: Text, FunctionCalls, or Reason (with SafetyRatings)
// for the two safety kinds. FinishReason and Usage are metadata.
type Outcome struct {
	Kind          OutcomeKind
	Text          string
	FunctionCalls []FunctionCall
	Reason        string
	SafetyRatings []SafetyRating
	FinishReason  string
	Usage         *Usage
}

// Normalize classifies resp. The order of checks is part of the contract:
// a prompt block wins over any candidate, a safety stop wins over content,
// function calls shadow text in the same candidate, and a candidate with no
// usable parts is Empty only when it ended normally or hit the token limit.
func Normalize(resp *genai.GenerateContentResponse) (Outcome, error) {
	if resp == nil {
		return Outcome{Kind: OutcomeEmpty}, nil
	}
	usage := usageOf(resp.UsageMetadata)

	if pf := resp.PromptFeedback; pf != nil && pf.BlockReason != genai.BlockReasonUnspecified {
		return Outcome{
			Kind:          OutcomeBlocked,
			Reason:        blockReasonName(pf.BlockReason),
			SafetyRatings: convertRatings(pf.SafetyRatings),
			Usage:         usage,
		}, nil
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return Outcome{Kind: OutcomeEmpty, Usage: usage}, nil
	}
	cand := resp.Candidates[0]
	finish := finishReasonName(cand.FinishReason)

	if cand.FinishReason == genai.FinishReasonSafety {
		return Outcome{
			Kind:          OutcomeSafetyStopped,
			Reason:        finish,
			SafetyRatings: convertRatings(cand.SafetyRatings),
			FinishReason:  finish,
			Usage:         usage,
		}, nil
	}

	var (
		calls   []FunctionCall
		text    strings.Builder
		sawText bool
	)
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			switch p := part.(type) {
			case genai.FunctionCall:
				calls = append(calls, FunctionCall{Name: p.Name, Args: p.Args})
			case *genai.FunctionCall:
				if p != nil {
					calls = append(calls, FunctionCall{Name: p.Name, Args: p.Args})
				}
			case genai.Text:
				sawText = true
				text.WriteString(string(p))
			}
		}
	}

	switch {
	case len(calls) > 0:
		return Outcome{Kind: OutcomeFunctionCalls, FunctionCalls: calls, FinishReason: finish, Usage: usage}, nil
	case sawText:
		return Outcome{Kind: OutcomeText, Text: text.String(), FinishReason: finish, Usage: usage}, nil
	case benignFinish(cand.FinishReason):
		return Outcome{Kind: OutcomeEmpty, FinishReason: finish, Usage: usage}, nil
	}
	return Outcome{}, &UnexpectedResponseShapeError{FinishReason: finish}
}

// benignFinish covers normal completion, the token limit, and the
// unspecified reason carried by intermediate stream chunks.
func benignFinish(r genai.FinishReason) bool {
	switch r {
	case genai.FinishReasonUnspecified, genai.FinishReasonStop, genai.FinishReasonMaxTokens:
		return true
	}
	return false
}

func convertRatings(in []*genai.SafetyRating) []SafetyRating {
	if len(in) == 0 {
		return nil
	}
	out := make([]SafetyRating, 0, len(in))
	for _, r := range in {
		if r == nil {
			continue
		}
		out = append(out, SafetyRating{
			Category:    harmCategoryName(r.Category),
			Probability: harmProbabilityName(r.Probability),
			Blocked:     r.Blocked,
		})
	}
	return out
}

func usageOf(u *genai.UsageMetadata) *Usage {
	if u == nil {
		return nil
	}
	return &Usage{
		PromptTokens:    u.PromptTokenCount,
		CandidateTokens: u.CandidatesTokenCount,
		CachedTokens:    u.CachedContentTokenCount,
		TotalTokens:     u.TotalTokenCount,
	}
}

func safetyErrorFrom(out Outcome) *SafetyError {
	return &SafetyError{
		Reason:        out.Reason,
		PromptBlocked: out.Kind == OutcomeBlocked,
		Ratings:       out.SafetyRatings,
	}
}
