// Package orchestrator runs the five classification stages for each
// admitted text note and coordinates their ordering against the delayed
// republish of the original note. Stage failures degrade to documented
// default results; nothing in here aborts a note.
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/c360/relaybridge/annotation"
	"github.com/c360/relaybridge/classifier"
	"github.com/c360/relaybridge/metric"
	"github.com/c360/relaybridge/normalizer"
	"github.com/c360/relaybridge/notemeta"
	"github.com/c360/relaybridge/publish"
	"github.com/c360/relaybridge/sidechannel"
)

// Clients bundles the per-kind classifier clients. A nil client means
// the stage is disabled.
type Clients struct {
	MediaSafety *classifier.MediaSafetyClient
	Language    *classifier.LanguageClient
	HateSpeech  *classifier.HateSpeechClient
	Sentiment   *classifier.SentimentClient
	Topic       *classifier.TopicClient
}

// Orchestrator drives classification for admitted text notes.
type Orchestrator struct {
	clients   Clients
	norm      *normalizer.Normalizer
	extractor *notemeta.Extractor
	builder   *annotation.Builder
	publisher *publish.Publisher
	broker    *sidechannel.Broker // optional
	metrics   *metric.Metrics     // optional
	logger    *slog.Logger

	notePublishDelay time.Duration
}

// New creates an Orchestrator. broker and metrics may be nil.
func New(
	clients Clients,
	norm *normalizer.Normalizer,
	extractor *notemeta.Extractor,
	builder *annotation.Builder,
	publisher *publish.Publisher,
	broker *sidechannel.Broker,
	metrics *metric.Metrics,
	logger *slog.Logger,
	notePublishDelay time.Duration,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		clients:          clients,
		norm:             norm,
		extractor:        extractor,
		builder:          builder,
		publisher:        publisher,
		broker:           broker,
		metrics:          metrics,
		logger:           logger,
		notePublishDelay: notePublishDelay,
	}
}

// mediaSafetyEntry is the per-URL annotation payload. Field names match
// the published content format consumed downstream.
type mediaSafetyEntry struct {
	ID                string `json:"id"`
	Author            string `json:"author"`
	IsActivityPubUser bool   `json:"is_activitypub_user"`
	HasContentWarning bool   `json:"has_content_warning"`
	HasNsfwHashtag    bool   `json:"has_nsfw_hashtag"`
	classifier.URLClassification
}

// ProcessNote runs all applicable stages for one admitted text note and
// returns when every stage and the delayed note republish have settled.
func (o *Orchestrator) ProcessNote(ctx context.Context, ev *nostr.Event) {
	hashtags := notemeta.Hashtags(ev.Tags)
	flags := classifier.NoteFlags{
		HasContentWarning: notemeta.HasContentWarning(ev.Tags),
		HasNsfwHashtag:    notemeta.HasNsfwHashtag(hashtags),
	}
	bridged := notemeta.IsBridgedUser(ev.Tags)
	mediaURLs := o.extractor.MediaURLs(ev.Content)

	var wg sync.WaitGroup

	// Media safety is time-critical; it runs alongside everything else.
	if o.clients.MediaSafety != nil && len(mediaURLs) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.runMediaSafety(ctx, ev, mediaURLs, flags, bridged)
		}()
	}

	// The original note goes back out after the configured delay so the
	// time-critical annotations can land alongside it.
	republished := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(republished)
		if err := o.publisher.PublishAfter(ctx, ev, o.notePublishDelay); err != nil {
			o.logger.Warn("note republish failed", "id", ev.ID, "error", err)
		}
	}()

	text := ""
	if o.clients.Language != nil {
		text = strings.TrimSpace(normalizer.StripEmoji(o.norm.Normalize(ev.Content)))
	}

	isEnglish := false
	if o.clients.Language != nil && text != "" {
		isEnglish = o.runLanguage(ctx, ev, text)
	} else if o.clients.Language != nil {
		o.logger.Debug("empty text after normalization, skipping language stage", "id", ev.ID)
		o.countStage(annotation.LabelLanguage, "skipped")
	}

	// Hate speech publishes only positive verdicts, immediately after
	// language since it shares the time-critical window.
	if o.clients.HateSpeech != nil && isEnglish && text != "" {
		o.runHateSpeech(ctx, ev, text)
	}

	// Sentiment and topic are not time-critical; they wait for the note
	// republish to settle.
	select {
	case <-republished:
	case <-ctx.Done():
	}

	if ctx.Err() == nil && isEnglish && text != "" {
		if o.clients.Sentiment != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				o.runSentiment(ctx, ev, text)
			}()
		}
		if o.clients.Topic != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				o.runTopic(ctx, ev, text)
			}()
		}
	}

	wg.Wait()
}

func (o *Orchestrator) runMediaSafety(ctx context.Context, ev *nostr.Event, urls []string, flags classifier.NoteFlags, bridged bool) {
	start := time.Now()
	results := o.clients.MediaSafety.ClassifyURLs(ctx, urls, flags)
	o.observeDuration(annotation.LabelNsfw, start)

	payload := make([]mediaSafetyEntry, 0, len(results))
	for _, r := range results {
		payload = append(payload, mediaSafetyEntry{
			ID:                ev.ID,
			Author:            ev.PubKey,
			IsActivityPubUser: bridged,
			HasContentWarning: flags.HasContentWarning,
			HasNsfwHashtag:    flags.HasNsfwHashtag,
			URLClassification: r,
		})
	}
	o.countStage(annotation.LabelNsfw, "ok")

	subject := sidechannel.SubjectNsfwUnflagged
	if classifier.AnyProbablyUnsafe(results) {
		subject = sidechannel.SubjectNsfwFlagged
	}

	o.emit(ctx, annotation.LabelNsfw, payload, ev, subject)
}

// runLanguage detects the note language and returns the derived
// isEnglish flag that gates the text stages below.
func (o *Orchestrator) runLanguage(ctx context.Context, ev *nostr.Event, text string) bool {
	start := time.Now()
	entries, err := o.clients.Language.Detect(ctx, text)
	o.observeDuration(annotation.LabelLanguage, start)

	if err != nil {
		o.logger.Debug("language detection degraded to default", "id", ev.ID, "error", err)
		entries = classifier.DefaultLanguage()
		o.countStage(annotation.LabelLanguage, "default")
	} else {
		o.countStage(annotation.LabelLanguage, "ok")
	}

	o.emit(ctx, annotation.LabelLanguage, entries, ev, sidechannel.SubjectLanguage)

	return classifier.IsEnglish(entries)
}

func (o *Orchestrator) runHateSpeech(ctx context.Context, ev *nostr.Event, text string) {
	start := time.Now()
	scores, err := o.clients.HateSpeech.Classify(ctx, text)
	o.observeDuration(annotation.LabelHateSpeech, start)

	if err != nil {
		o.logger.Debug("hate speech classification degraded to default", "id", ev.ID, "error", err)
		scores = classifier.DefaultHateSpeech()
		o.countStage(annotation.LabelHateSpeech, "default")
	} else {
		o.countStage(annotation.LabelHateSpeech, "ok")
	}

	// Negative results are not published; this bounds annotation volume
	// to actionable events.
	if !scores.ProbablyHateSpeech() {
		return
	}

	o.emit(ctx, annotation.LabelHateSpeech, scores, ev, sidechannel.SubjectHateSpeech)
}

func (o *Orchestrator) runSentiment(ctx context.Context, ev *nostr.Event, text string) {
	start := time.Now()
	scores, err := o.clients.Sentiment.Analyze(ctx, text)
	o.observeDuration(annotation.LabelSentiment, start)

	if err != nil {
		o.logger.Debug("sentiment analysis degraded to default", "id", ev.ID, "error", err)
		scores = classifier.DefaultSentiment()
		o.countStage(annotation.LabelSentiment, "default")
	} else {
		o.countStage(annotation.LabelSentiment, "ok")
	}

	o.emit(ctx, annotation.LabelSentiment, scores, ev, sidechannel.SubjectSentiment)
}

func (o *Orchestrator) runTopic(ctx context.Context, ev *nostr.Event, text string) {
	start := time.Now()
	topics, err := o.clients.Topic.Classify(ctx, text)
	o.observeDuration(annotation.LabelTopic, start)

	if err != nil {
		o.logger.Debug("topic classification degraded to default", "id", ev.ID, "error", err)
		topics = classifier.DefaultTopics()
		o.countStage(annotation.LabelTopic, "default")
	} else {
		o.countStage(annotation.LabelTopic, "ok")
	}

	o.emit(ctx, annotation.LabelTopic, topics, ev, sidechannel.SubjectTopic)
}

// emit builds the annotation, publishes it to the targets and mirrors it
// to the side channel. Build failures drop the annotation only.
func (o *Orchestrator) emit(ctx context.Context, label string, payload any, orig *nostr.Event, subject string) {
	annot, err := o.builder.Build(label, payload, orig.ID, orig.PubKey, orig.CreatedAt)
	if err != nil {
		o.logger.Warn("annotation build failed", "kind", label, "id", orig.ID, "error", err)
		o.countDropped(label, "build_failed")
		return
	}

	if err := o.publisher.Publish(ctx, annot); err != nil {
		o.countDropped(label, "publish_failed")
		return
	}
	if o.metrics != nil {
		o.metrics.AnnotationsPublished.WithLabelValues(label).Inc()
	}

	o.mirror(subject, annot)
}

// mirror sends the annotation to the side channel, fire and forget.
func (o *Orchestrator) mirror(subject string, annot *nostr.Event) {
	if o.broker == nil {
		return
	}
	data, err := json.Marshal(annot)
	if err != nil {
		return
	}
	o.broker.Publish(subject, data)
}

func (o *Orchestrator) countStage(kind, outcome string) {
	if o.metrics != nil {
		o.metrics.NotesClassified.WithLabelValues(kind, outcome).Inc()
	}
}

func (o *Orchestrator) countDropped(kind, reason string) {
	if o.metrics != nil {
		o.metrics.AnnotationsDropped.WithLabelValues(kind, reason).Inc()
	}
}

func (o *Orchestrator) observeDuration(kind string, start time.Time) {
	if o.metrics != nil {
		o.metrics.ClassifierDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}
}
