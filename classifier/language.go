package classifier

import (
	"context"
	"net/http"

	"golang.org/x/sync/semaphore"

	"github.com/c360/relaybridge/normalizer"
)

// LanguageEntry is one ranked guess from the language detector.
type LanguageEntry struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// EnglishConfidenceThreshold is the minimum confidence for a note to be
// treated as English for downstream gating.
const EnglishConfidenceThreshold = 50

// IsEnglish reports whether any entry identifies English with sufficient
// confidence.
func IsEnglish(entries []LanguageEntry) bool {
	for _, e := range entries {
		if e.Language == "en" && e.Confidence >= EnglishConfidenceThreshold {
			return true
		}
	}
	return false
}

// DefaultLanguage is the result substituted when detection fails: English
// at zero confidence, so downstream gating still has a deterministic input.
func DefaultLanguage() []LanguageEntry {
	return []LanguageEntry{{Language: "en", Confidence: 0}}
}

// LanguageClient talks to the language detection service.
type LanguageClient struct {
	core
	truncateLength int
}

// NewLanguageClient creates a client for the given endpoint.
func NewLanguageClient(endpoint, token string, truncateLength int, httpClient *http.Client, sem *semaphore.Weighted) *LanguageClient {
	return &LanguageClient{
		core:           newCore(endpoint, token, httpClient, sem),
		truncateLength: truncateLength,
	}
}

// Detect returns the ranked language guesses for text. The text is
// truncated to the configured limit before sending.
func (c *LanguageClient) Detect(ctx context.Context, text string) ([]LanguageEntry, error) {
	text = normalizer.Truncate(text, c.truncateLength)

	var out []LanguageEntry
	if err := c.post(ctx, textRequest{Q: text, APIKey: c.token}, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}
