package gemini

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// typedError marks errors that belong to the package taxonomy. Translation
// passes them through untouched.
type typedError interface {
	error
	typed()
}

// ConfigurationError reports a call that cannot be made as configured, most
// often because no model could be resolved. No provider call was attempted.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return "configuration error: " + e.Message }
func (*ConfigurationError) typed()          {}

// NotFoundError reports an unknown session, file or cached content.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Kind, e.ID) }
func (*NotFoundError) typed()          {}

// SafetyError reports content blocked or cut off by the provider's safety
// policy. PromptBlocked distinguishes a rejected prompt from a stopped
// response.
type SafetyError struct {
	Reason        string
	PromptBlocked bool
	Ratings       []SafetyRating
}

func (e *SafetyError) Error() string {
	if e.PromptBlocked {
		return "prompt blocked by safety policy: " + e.Reason
	}
	return "response stopped by safety policy: " + e.Reason
}
func (*SafetyError) typed() {}

// TransportError wraps network and SDK failures. Callers may retry the call.
type TransportError struct {
	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	if e.Cause == nil {
		return "transport error: " + e.Message
	}
	return fmt.Sprintf("transport error: %s: %v", e.Message, e.Cause)
}
func (e *TransportError) Unwrap() error { return e.Cause }
func (*TransportError) typed()          {}

// UnexpectedResponseShapeError reports a response the normalizer could not
// classify, usually a sign of a provider contract change.
type UnexpectedResponseShapeError struct {
	FinishReason string
}

func (e *UnexpectedResponseShapeError) Error() string {
	return "unexpected response shape: candidate has no usable parts (finish reason " + e.FinishReason + ")"
}
func (*UnexpectedResponseShapeError) typed() {}

// translateError maps a raw failure into the taxonomy. kind and id name the
// resource the call addressed and are used for not-found classification;
// calls without an addressable resource pass an empty kind.
func translateError(err error, kind, id string) error {
	if err == nil {
		return nil
	}
	var t typedError
	if errors.As(err, &t) {
		return err
	}
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return safetyFromBlocked(blocked)
	}
	if kind != "" && isNotFound(err) {
		return &NotFoundError{Kind: kind, ID: id}
	}
	return &TransportError{Message: "gemini request failed", Cause: err}
}

// isNotFound prefers structured status codes and only then falls back to
// matching the message text.
func isNotFound(err error) bool {
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound
	}
	var aerr *apierror.APIError
	if errors.As(err, &aerr) {
		if aerr.HTTPCode() == http.StatusNotFound {
			return true
		}
		if st := aerr.GRPCStatus(); st != nil {
			return st.Code() == codes.NotFound
		}
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return st.Code() == codes.NotFound
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}

func safetyFromBlocked(b *genai.BlockedError) *SafetyError {
	if b.PromptFeedback != nil {
		return &SafetyError{
			Reason:        blockReasonName(b.PromptFeedback.BlockReason),
			PromptBlocked: true,
			Ratings:       convertRatings(b.PromptFeedback.SafetyRatings),
		}
	}
	if b.Candidate != nil {
		return &SafetyError{
			Reason:  finishReasonName(b.Candidate.FinishReason),
			Ratings: convertRatings(b.Candidate.SafetyRatings),
		}
	}
	return &SafetyError{Reason: "UNKNOWN"}
}

// unfoldBlocked turns the SDK's BlockedError back into a response so the
// normalizer applies one decision order to every blocked shape.
func unfoldBlocked(resp *genai.GenerateContentResponse, err error) (*genai.GenerateContentResponse, error) {
	var blocked *genai.BlockedError
	if err == nil || !errors.As(err, &blocked) {
		return resp, err
	}
	if resp != nil {
		return resp, nil
	}
	switch {
	case blocked.PromptFeedback != nil:
		return &genai.GenerateContentResponse{PromptFeedback: blocked.PromptFeedback}, nil
	case blocked.Candidate != nil:
		return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{blocked.Candidate}}, nil
	}
	return resp, err
}
