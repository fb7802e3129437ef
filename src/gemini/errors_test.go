package gemini

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestTranslateErrorPassesTypedErrorsThrough(t *testing.T) {
	for _, err := range []error{
		&ConfigurationError{Message: "x"},
		&NotFoundError{Kind: "session", ID: "s"},
		&SafetyError{Reason: "SAFETY"},
		&TransportError{Message: "x"},
		&UnexpectedResponseShapeError{FinishReason: "OTHER"},
	} {
		assert.Same(t, err, translateError(err, "file", "f"))
	}
	wrapped := fmt.Errorf("outer: %w", &NotFoundError{Kind: "cache", ID: "c"})
	assert.Same(t, wrapped, translateError(wrapped, "file", "f"))
	assert.NoError(t, translateError(nil, "", ""))
}

func TestTranslateErrorNotFound(t *testing.T) {
	grpcNotFound := status.Error(codes.NotFound, "gone")
	apiErr, ok := apierror.FromError(grpcNotFound)
	require.True(t, ok)

	cases := map[string]error{
		"googleapi 404":  &googleapi.Error{Code: 404, Message: "nope"},
		"grpc status":    grpcNotFound,
		"apierror":       apiErr,
		"fs not exist":   fmt.Errorf("open: %w", fs.ErrNotExist),
		"message suffix": errors.New("rpc error: Resource NOT FOUND"),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			var nf *NotFoundError
			require.ErrorAs(t, translateError(in, "file", "files/abc"), &nf)
			assert.Equal(t, NotFoundError{Kind: "file", ID: "files/abc"}, *nf)
		})
	}
}

func TestTranslateErrorPrefersCodesOverText(t *testing.T) {
	err := translateError(&googleapi.Error{Code: 500, Message: "model not found in region"}, "cache", "c")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 500, te.Cause.(*googleapi.Error).Code)

	err = translateError(status.Error(codes.PermissionDenied, "not found or denied"), "cache", "c")
	assert.ErrorAs(t, err, &te)
}

func TestTranslateErrorWithoutResourceIsTransport(t *testing.T) {
	cause := &googleapi.Error{Code: 404}
	err := translateError(cause, "", "")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "transport error: gemini request failed")
}

func TestTranslateErrorBlocked(t *testing.T) {
	err := translateError(&genai.BlockedError{PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonOther}}, "", "")
	var se *SafetyError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.PromptBlocked)
	assert.Equal(t, "OTHER", se.Reason)
	assert.Equal(t, "prompt blocked by safety policy: OTHER", se.Error())

	err = translateError(&genai.BlockedError{Candidate: &genai.Candidate{FinishReason: genai.FinishReasonSafety}}, "", "")
	require.ErrorAs(t, err, &se)
	assert.False(t, se.PromptBlocked)
	assert.Equal(t, "response stopped by safety policy: SAFETY", se.Error())
}

func TestUnfoldBlocked(t *testing.T) {
	resp, err := unfoldBlocked(nil, &genai.BlockedError{PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety}})
	require.NoError(t, err)
	out, err := Normalize(resp)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlocked, out.Kind)

	full := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}}
	resp, err = unfoldBlocked(full, &genai.BlockedError{Candidate: full.Candidates[0]})
	require.NoError(t, err)
	assert.Same(t, full, resp)

	plain := errors.New("boom")
	_, err = unfoldBlocked(nil, plain)
	assert.Same(t, plain, err)
}

func TestNotFoundErrorMessage(t *testing.T) {
	assert.Equal(t, `session "bogus" not found`, (&NotFoundError{Kind: "session", ID: "bogus"}).Error())
}
