package classifier

import (
	"context"
	"net/http"

	"golang.org/x/sync/semaphore"

	"github.com/c360/relaybridge/normalizer"
)

// TopicEntry is one topic label with its score.
type TopicEntry struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// DefaultTopics is the empty list substituted when classification fails.
func DefaultTopics() []TopicEntry {
	return []TopicEntry{}
}

// TopicClient talks to the topic classification service.
type TopicClient struct {
	core
	truncateLength int
}

// NewTopicClient creates a client for the given endpoint.
func NewTopicClient(endpoint, token string, truncateLength int, httpClient *http.Client, sem *semaphore.Weighted) *TopicClient {
	return &TopicClient{
		core:           newCore(endpoint, token, httpClient, sem),
		truncateLength: truncateLength,
	}
}

// Classify returns ranked topic labels for text.
func (c *TopicClient) Classify(ctx context.Context, text string) ([]TopicEntry, error) {
	text = normalizer.Truncate(text, c.truncateLength)

	var out []TopicEntry
	if err := c.post(ctx, textRequest{Q: text, APIKey: c.token}, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}
