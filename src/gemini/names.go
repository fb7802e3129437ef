package gemini

import (
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
)

// Wire names follow the REST API enums so that tool callers can pass and
// read the same strings the Gemini documentation uses.

var finishReasonNames = map[genai.FinishReason]string{
	genai.FinishReasonUnspecified: "FINISH_REASON_UNSPECIFIED",
	genai.FinishReasonStop:        "STOP",
	genai.FinishReasonMaxTokens:   "MAX_TOKENS",
	genai.FinishReasonSafety:      "SAFETY",
	genai.FinishReasonRecitation:  "RECITATION",
	genai.FinishReasonOther:       "OTHER",
}

var blockReasonNames = map[genai.BlockReason]string{
	genai.BlockReasonUnspecified: "BLOCK_REASON_UNSPECIFIED",
	genai.BlockReasonSafety:      "SAFETY",
	genai.BlockReasonOther:       "OTHER",
}

var harmCategoryNames = map[genai.HarmCategory]string{
	genai.HarmCategoryUnspecified:      "HARM_CATEGORY_UNSPECIFIED",
	genai.HarmCategoryHarassment:       "HARM_CATEGORY_HARASSMENT",
	genai.HarmCategoryHateSpeech:       "HARM_CATEGORY_HATE_SPEECH",
	genai.HarmCategorySexuallyExplicit: "HARM_CATEGORY_SEXUALLY_EXPLICIT",
	genai.HarmCategoryDangerousContent: "HARM_CATEGORY_DANGEROUS_CONTENT",
}

var harmProbabilityNames = map[genai.HarmProbability]string{
	genai.HarmProbabilityUnspecified: "HARM_PROBABILITY_UNSPECIFIED",
	genai.HarmProbabilityNegligible:  "NEGLIGIBLE",
	genai.HarmProbabilityLow:         "LOW",
	genai.HarmProbabilityMedium:      "MEDIUM",
	genai.HarmProbabilityHigh:        "HIGH",
}

var harmThresholds = map[string]genai.HarmBlockThreshold{
	"HARM_BLOCK_THRESHOLD_UNSPECIFIED": genai.HarmBlockUnspecified,
	"BLOCK_LOW_AND_ABOVE":              genai.HarmBlockLowAndAbove,
	"BLOCK_MEDIUM_AND_ABOVE":           genai.HarmBlockMediumAndAbove,
	"BLOCK_ONLY_HIGH":                  genai.HarmBlockOnlyHigh,
	"BLOCK_NONE":                       genai.HarmBlockNone,
}

var functionCallingModes = map[string]genai.FunctionCallingMode{
	"MODE_UNSPECIFIED": genai.FunctionCallingUnspecified,
	"AUTO":             genai.FunctionCallingAuto,
	"ANY":              genai.FunctionCallingAny,
	"NONE":             genai.FunctionCallingNone,
}

var fileStateNames = map[genai.FileState]string{
	genai.FileStateUnspecified: "STATE_UNSPECIFIED",
	genai.FileStateProcessing:  "PROCESSING",
	genai.FileStateActive:      "ACTIVE",
	genai.FileStateFailed:      "FAILED",
}

func finishReasonName(r genai.FinishReason) string {
	if n, ok := finishReasonNames[r]; ok {
		return n
	}
	return fmt.Sprintf("FINISH_REASON_%d", r)
}

func blockReasonName(r genai.BlockReason) string {
	if n, ok := blockReasonNames[r]; ok {
		return n
	}
	return fmt.Sprintf("BLOCK_REASON_%d", r)
}

func harmCategoryName(c genai.HarmCategory) string {
	if n, ok := harmCategoryNames[c]; ok {
		return n
	}
	return fmt.Sprintf("HARM_CATEGORY_%d", c)
}

func harmProbabilityName(p genai.HarmProbability) string {
	if n, ok := harmProbabilityNames[p]; ok {
		return n
	}
	return fmt.Sprintf("HARM_PROBABILITY_%d", p)
}

func fileStateName(s genai.FileState) string {
	if n, ok := fileStateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("STATE_%d", s)
}

// ParseHarmCategory accepts the REST name, with or without the
// HARM_CATEGORY_ prefix.
func ParseHarmCategory(s string) (genai.HarmCategory, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(name, "HARM_CATEGORY_") {
		name = "HARM_CATEGORY_" + name
	}
	for c, n := range harmCategoryNames {
		if n == name && c != genai.HarmCategoryUnspecified {
			return c, nil
		}
	}
	return genai.HarmCategoryUnspecified, fmt.Errorf("unknown harm category %q", s)
}

// ParseHarmBlockThreshold accepts names such as BLOCK_ONLY_HIGH.
func ParseHarmBlockThreshold(s string) (genai.HarmBlockThreshold, error) {
	if t, ok := harmThresholds[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	return genai.HarmBlockUnspecified, fmt.Errorf("unknown harm block threshold %q", s)
}

// ParseFunctionCallingMode accepts AUTO, ANY or NONE.
func ParseFunctionCallingMode(s string) (genai.FunctionCallingMode, error) {
	if m, ok := functionCallingModes[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return m, nil
	}
	return genai.FunctionCallingUnspecified, fmt.Errorf("unknown function calling mode %q", s)
}
