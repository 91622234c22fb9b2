package classifier

import (
	"context"
	"net/http"

	"golang.org/x/sync/semaphore"

	"github.com/c360/relaybridge/normalizer"
)

// HateSpeechThreshold is the minimum category score for a note to count
// as probable hate speech.
const HateSpeechThreshold = 0.2

// HateSpeechScores holds the per-category toxicity scores.
type HateSpeechScores struct {
	IdentityAttack float64 `json:"identity_attack"`
	Insult         float64 `json:"insult"`
	Obscene        float64 `json:"obscene"`
	SevereToxicity float64 `json:"severe_toxicity"`
	SexualExplicit float64 `json:"sexual_explicit"`
	Threat         float64 `json:"threat"`
	Toxicity       float64 `json:"toxicity"`
}

// Max returns the highest category score.
func (s HateSpeechScores) Max() float64 {
	max := s.IdentityAttack
	for _, v := range []float64{s.Insult, s.Obscene, s.SevereToxicity, s.SexualExplicit, s.Threat, s.Toxicity} {
		if v > max {
			max = v
		}
	}
	return max
}

// ProbablyHateSpeech reports whether any category crosses the threshold.
func (s HateSpeechScores) ProbablyHateSpeech() bool {
	return s.Max() >= HateSpeechThreshold
}

// DefaultHateSpeech is the all-zero result substituted when the
// classifier fails; it never crosses the publish threshold.
func DefaultHateSpeech() HateSpeechScores {
	return HateSpeechScores{}
}

// HateSpeechClient talks to the hate speech detection service.
type HateSpeechClient struct {
	core
	truncateLength int
}

// NewHateSpeechClient creates a client for the given endpoint.
func NewHateSpeechClient(endpoint, token string, truncateLength int, httpClient *http.Client, sem *semaphore.Weighted) *HateSpeechClient {
	return &HateSpeechClient{
		core:           newCore(endpoint, token, httpClient, sem),
		truncateLength: truncateLength,
	}
}

// Classify scores text for hate speech.
func (c *HateSpeechClient) Classify(ctx context.Context, text string) (HateSpeechScores, error) {
	text = normalizer.Truncate(text, c.truncateLength)

	var out HateSpeechScores
	if err := c.post(ctx, textRequest{Q: text, APIKey: c.token}, false, &out); err != nil {
		return HateSpeechScores{}, err
	}
	return out, nil
}
