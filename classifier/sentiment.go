package classifier

import (
	"context"
	"net/http"

	"golang.org/x/sync/semaphore"

	"github.com/c360/relaybridge/normalizer"
)

// SentimentScores holds the sentiment distribution for a note.
type SentimentScores struct {
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
	Positive float64 `json:"positive"`
}

// DefaultSentiment is the all-zero result substituted when the classifier
// fails, distinguishable from any real distribution which sums to ~1.
func DefaultSentiment() SentimentScores {
	return SentimentScores{}
}

// SentimentClient talks to the sentiment analysis service.
type SentimentClient struct {
	core
	truncateLength int
}

// NewSentimentClient creates a client for the given endpoint.
func NewSentimentClient(endpoint, token string, truncateLength int, httpClient *http.Client, sem *semaphore.Weighted) *SentimentClient {
	return &SentimentClient{
		core:           newCore(endpoint, token, httpClient, sem),
		truncateLength: truncateLength,
	}
}

// Analyze scores the sentiment of text.
func (c *SentimentClient) Analyze(ctx context.Context, text string) (SentimentScores, error) {
	text = normalizer.Truncate(text, c.truncateLength)

	var out SentimentScores
	if err := c.post(ctx, textRequest{Q: text, APIKey: c.token}, false, &out); err != nil {
		return SentimentScores{}, err
	}
	return out, nil
}
