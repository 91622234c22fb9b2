package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/relaybridge/annotation"
	"github.com/c360/relaybridge/classifier"
	"github.com/c360/relaybridge/normalizer"
	"github.com/c360/relaybridge/notemeta"
	"github.com/c360/relaybridge/publish"
)

// recordingSender captures every event delivered to a target with its
// arrival time.
type recordingSender struct {
	mu     sync.Mutex
	events []sentEvent
}

type sentEvent struct {
	ev *nostr.Event
	at time.Time
}

func (r *recordingSender) Send(_ context.Context, _ string, ev *nostr.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *ev
	r.events = append(r.events, sentEvent{ev: &copied, at: time.Now()})
	return nil
}

func (r *recordingSender) byLabel(label string) *sentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := annotation.TagValue(label)
	for i := range r.events {
		ev := r.events[i].ev
		if ev.Kind == annotation.Kind && ev.Tags.GetFirst([]string{"d", want}) != nil {
			return &r.events[i]
		}
	}
	return nil
}

func (r *recordingSender) original(id string) *sentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.events {
		if r.events[i].ev.ID == id {
			return &r.events[i]
		}
	}
	return nil
}

func jsonServer(t *testing.T, payload any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signedNote(t *testing.T, content string, tags nostr.Tags) *nostr.Event {
	t.Helper()
	ev := &nostr.Event{
		Kind:      1,
		CreatedAt: nostr.Now(),
		Tags:      tags,
		Content:   content,
	}
	require.NoError(t, ev.Sign(nostr.GeneratePrivateKey()))
	return ev
}

func testOrchestrator(t *testing.T, clients Clients, sender publish.Sender, delay time.Duration) *Orchestrator {
	t.Helper()
	builder, err := annotation.NewBuilder(nostr.GeneratePrivateKey())
	require.NoError(t, err)
	extractor, err := notemeta.NewExtractor(nil)
	require.NoError(t, err)

	return New(
		clients,
		normalizer.New(normalizer.KeepQuotes),
		extractor,
		builder,
		publish.New([]string{"wss://target"}, sender, nil, nil),
		nil, nil, nil,
		delay,
	)
}

func TestProcessNote_EndToEnd(t *testing.T) {
	httpClient := classifier.NewHTTPClient()
	limiter := classifier.NewLimiter()

	media := jsonServer(t, map[string]any{"data": classifier.MediaScores{Neutral: 0.05}})
	language := jsonServer(t, []classifier.LanguageEntry{{Language: "en", Confidence: 95}})
	hate := jsonServer(t, classifier.HateSpeechScores{Toxicity: 0.05})
	sentiment := jsonServer(t, classifier.SentimentScores{Positive: 0.9, Neutral: 0.08, Negative: 0.02})
	topic := jsonServer(t, []classifier.TopicEntry{{Label: "lifestyle", Score: 0.7}})

	clients := Clients{
		MediaSafety: classifier.NewMediaSafetyClient(media.URL, "", httpClient, limiter),
		Language:    classifier.NewLanguageClient(language.URL, "", 350, httpClient, limiter),
		HateSpeech:  classifier.NewHateSpeechClient(hate.URL, "", 350, httpClient, limiter),
		Sentiment:   classifier.NewSentimentClient(sentiment.URL, "", 350, httpClient, limiter),
		Topic:       classifier.NewTopicClient(topic.URL, "", 350, httpClient, limiter),
	}

	sender := &recordingSender{}
	o := testOrchestrator(t, clients, sender, 30*time.Millisecond)

	note := signedNote(t, "check this out https://x.test/pic.jpg #CoolStuff", nostr.Tags{{"t", "CoolStuff"}})
	o.ProcessNote(context.Background(), note)

	// Media safety: neutral 0.05 crosses both thresholds, author did not
	// flag the content.
	nsfw := sender.byLabel(annotation.LabelNsfw)
	require.NotNil(t, nsfw, "media safety annotation missing")
	assert.NotNil(t, nsfw.ev.Tags.GetFirst([]string{"e", note.ID}))
	assert.NotNil(t, nsfw.ev.Tags.GetFirst([]string{"p", note.PubKey}))

	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(nsfw.ev.Content), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "https://x.test/pic.jpg", entries[0]["url"])
	assert.Equal(t, true, entries[0]["probably_nsfw"])
	assert.Equal(t, true, entries[0]["high_probably_nsfw"])
	assert.Equal(t, false, entries[0]["responsible_nsfw"])

	// Language annotation present
	lang := sender.byLabel(annotation.LabelLanguage)
	require.NotNil(t, lang)

	// Hate speech below threshold: no annotation
	assert.Nil(t, sender.byLabel(annotation.LabelHateSpeech))

	// Original note republished after the delay
	orig := sender.original(note.ID)
	require.NotNil(t, orig, "original note not republished")

	// Sentiment and topic run only after the republish settles
	sent := sender.byLabel(annotation.LabelSentiment)
	require.NotNil(t, sent)
	assert.False(t, sent.at.Before(orig.at))

	top := sender.byLabel(annotation.LabelTopic)
	require.NotNil(t, top)
	assert.False(t, top.at.Before(orig.at))
}

func TestProcessNote_HateSpeechAboveThreshold(t *testing.T) {
	httpClient := classifier.NewHTTPClient()
	limiter := classifier.NewLimiter()

	language := jsonServer(t, []classifier.LanguageEntry{{Language: "en", Confidence: 95}})
	hate := jsonServer(t, classifier.HateSpeechScores{Toxicity: 0.6, Insult: 0.3})

	clients := Clients{
		Language:   classifier.NewLanguageClient(language.URL, "", 350, httpClient, limiter),
		HateSpeech: classifier.NewHateSpeechClient(hate.URL, "", 350, httpClient, limiter),
	}

	sender := &recordingSender{}
	o := testOrchestrator(t, clients, sender, 0)

	o.ProcessNote(context.Background(), signedNote(t, "some hostile text", nil))

	hs := sender.byLabel(annotation.LabelHateSpeech)
	require.NotNil(t, hs, "hate speech annotation missing")

	var scores classifier.HateSpeechScores
	require.NoError(t, json.Unmarshal([]byte(hs.ev.Content), &scores))
	assert.InDelta(t, 0.6, scores.Toxicity, 1e-9)
}

func TestProcessNote_EmptyTextSkipsLanguage(t *testing.T) {
	httpClient := classifier.NewHTTPClient()
	limiter := classifier.NewLimiter()

	var called bool
	language := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		json.NewEncoder(w).Encode([]classifier.LanguageEntry{})
	}))
	defer language.Close()

	clients := Clients{
		Language: classifier.NewLanguageClient(language.URL, "", 350, httpClient, limiter),
	}

	sender := &recordingSender{}
	o := testOrchestrator(t, clients, sender, 0)

	// URL-only content normalizes to empty text
	o.ProcessNote(context.Background(), signedNote(t, "https://example.com/page", nil))

	assert.False(t, called, "language detector must not be called for empty text")
	assert.Nil(t, sender.byLabel(annotation.LabelLanguage))

	// The original note still goes out
	assert.NotNil(t, sender.original(sender.events[0].ev.ID))
}

func TestProcessNote_LanguageFailureDegradesAndGates(t *testing.T) {
	httpClient := classifier.NewHTTPClient()
	limiter := classifier.NewLimiter()

	language := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer language.Close()

	var sentimentCalled bool
	sentiment := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		sentimentCalled = true
		json.NewEncoder(w).Encode(classifier.SentimentScores{})
	}))
	defer sentiment.Close()

	clients := Clients{
		Language:  classifier.NewLanguageClient(language.URL, "", 350, httpClient, limiter),
		Sentiment: classifier.NewSentimentClient(sentiment.URL, "", 350, httpClient, limiter),
	}

	sender := &recordingSender{}
	o := testOrchestrator(t, clients, sender, 0)

	o.ProcessNote(context.Background(), signedNote(t, "plain words here", nil))

	// Degraded default still produces a language annotation
	lang := sender.byLabel(annotation.LabelLanguage)
	require.NotNil(t, lang)

	var entries []classifier.LanguageEntry
	require.NoError(t, json.Unmarshal([]byte(lang.ev.Content), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "en", entries[0].Language)
	assert.Zero(t, entries[0].Confidence)

	// Default has zero confidence: isEnglish is false, sentiment gated off
	assert.False(t, sentimentCalled)
	assert.Nil(t, sender.byLabel(annotation.LabelSentiment))
}

func TestProcessNote_NonEnglishSkipsTextStages(t *testing.T) {
	httpClient := classifier.NewHTTPClient()
	limiter := classifier.NewLimiter()

	language := jsonServer(t, []classifier.LanguageEntry{{Language: "ja", Confidence: 99}})

	var hateCalled bool
	hate := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hateCalled = true
		json.NewEncoder(w).Encode(classifier.HateSpeechScores{})
	}))
	defer hate.Close()

	clients := Clients{
		Language:   classifier.NewLanguageClient(language.URL, "", 350, httpClient, limiter),
		HateSpeech: classifier.NewHateSpeechClient(hate.URL, "", 350, httpClient, limiter),
	}

	sender := &recordingSender{}
	o := testOrchestrator(t, clients, sender, 0)

	o.ProcessNote(context.Background(), signedNote(t, "konnichiwa sekai", nil))

	require.NotNil(t, sender.byLabel(annotation.LabelLanguage))
	assert.False(t, hateCalled)
	assert.Nil(t, sender.byLabel(annotation.LabelHateSpeech))
}
