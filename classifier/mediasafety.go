package classifier

import (
	"context"
	"net/http"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Media-safety probability thresholds over p = 1 - neutral.
const (
	ProbablyUnsafeThreshold       = 0.75
	HighConfidenceUnsafeThreshold = 0.85
)

// MediaScores is the raw score distribution returned by the detector.
type MediaScores struct {
	Drawings float64 `json:"drawings"`
	Hentai   float64 `json:"hentai"`
	Neutral  float64 `json:"neutral"`
	Porn     float64 `json:"porn"`
	Sexy     float64 `json:"sexy"`
}

type mediaSafetyResponse struct {
	Data MediaScores `json:"data"`
}

// NoteFlags carries the author-provided warnings that feed the
// responsible-unsafe derivation.
type NoteFlags struct {
	HasContentWarning bool
	HasNsfwHashtag    bool
}

// URLClassification is the per-URL media-safety verdict. Field names
// match the annotation payload consumed downstream.
type URLClassification struct {
	URL                  string      `json:"url"`
	Status               bool        `json:"status"`
	Data                 any         `json:"data"`
	ProbablyUnsafe       bool        `json:"probably_nsfw"`
	HighConfidenceUnsafe bool        `json:"high_probably_nsfw"`
	Responsible          bool        `json:"responsible_nsfw"`
}

// AnyProbablyUnsafe aggregates the per-URL flags.
func AnyProbablyUnsafe(results []URLClassification) bool {
	for _, r := range results {
		if r.Status && r.ProbablyUnsafe {
			return true
		}
	}
	return false
}

// MediaSafetyClient talks to the media safety (NSFW) detection service.
type MediaSafetyClient struct {
	core
}

// NewMediaSafetyClient creates a client for the given endpoint.
func NewMediaSafetyClient(endpoint, token string, httpClient *http.Client, sem *semaphore.Weighted) *MediaSafetyClient {
	return &MediaSafetyClient{core: newCore(endpoint, token, httpClient, sem)}
}

type mediaURLRequest struct {
	URL string `json:"url"`
}

// ClassifyURL scores one media URL and derives the unsafe flags from
// p = 1 - neutral. The author flags feed the responsible derivation:
// unsafe content counts as responsible only when the author flagged it.
func (c *MediaSafetyClient) ClassifyURL(ctx context.Context, url string, flags NoteFlags) URLClassification {
	var resp mediaSafetyResponse
	if err := c.post(ctx, mediaURLRequest{URL: url}, true, &resp); err != nil {
		// Fail safe: unclassifiable media is treated as needing
		// human-visible caution.
		return URLClassification{
			URL:         url,
			Status:      false,
			Data:        err.Error(),
			Responsible: true,
		}
	}

	prob := 1 - resp.Data.Neutral
	probably := prob >= ProbablyUnsafeThreshold

	responsible := true
	if probably {
		responsible = flags.HasContentWarning || flags.HasNsfwHashtag
	}

	return URLClassification{
		URL:                  url,
		Status:               true,
		Data:                 resp.Data,
		ProbablyUnsafe:       probably,
		HighConfidenceUnsafe: prob >= HighConfidenceUnsafeThreshold,
		Responsible:          responsible,
	}
}

// ClassifyURLs fans out one request per URL concurrently, bounded by the
// shared limiter inside post. All results settle; per-URL failures
// degrade to the fail-safe default instead of aborting the batch.
func (c *MediaSafetyClient) ClassifyURLs(ctx context.Context, urls []string, flags NoteFlags) []URLClassification {
	results := make([]URLClassification, len(urls))

	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			results[i] = c.ClassifyURL(ctx, u, flags)
		}(i, u)
	}
	wg.Wait()

	return results
}
