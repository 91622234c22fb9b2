// Package config loads and validates bridge configuration from the
// environment. The process is configured entirely through environment
// variables; invalid values are fatal at startup rather than silently
// defaulted.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/c360/relaybridge/errors"
)

// ClassifierConfig holds the settings for one classification stage.
type ClassifierConfig struct {
	Enabled        bool
	Endpoint       string
	Token          string
	TruncateLength int
}

// Config is the complete bridge configuration.
type Config struct {
	// Relay topology
	SourceRelays []string
	TargetRelays []string

	// Signing key for annotation events (64-char hex)
	PrivateKey string
	// PublicKey is derived from PrivateKey during Validate
	PublicKey string

	// Classification stages
	MediaSafety ClassifierConfig
	Language    ClassifierConfig
	HateSpeech  ClassifierConfig
	Sentiment   ClassifierConfig
	Topic       ClassifierConfig

	// Side channel
	SidechannelEnabled bool
	SidechannelBrokers []string

	// Pipeline tuning
	FreshnessWindow  time.Duration
	NotePublishDelay time.Duration

	// Extra regex patterns treated as media URLs in note content
	ExtraMediaURLPatterns []string

	// File receiving events that fail signature verification, one JSON
	// line each; empty disables the file record
	InvalidEventsFile string

	// Metrics endpoint; empty disables the listener
	MetricsListenAddr string
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		SourceRelays: envList("RELAYS_SOURCE"),
		TargetRelays: envList("RELAYS_TO_PUBLISH"),
		PrivateKey:   strings.TrimSpace(os.Getenv("MONITORING_BOT_PRIVATE_KEY")),

		SidechannelEnabled: envBool("ENABLE_SIDECHANNEL_PUBLISH", false),
		SidechannelBrokers: envList("SIDECHANNEL_BROKER_TO_PUBLISH"),

		ExtraMediaURLPatterns: envList("EXTRA_MEDIA_URL_PATTERNS"),
		InvalidEventsFile:     strings.TrimSpace(os.Getenv("INVALID_EVENTS_FILE")),
		MetricsListenAddr:     envDefault("METRICS_LISTEN_ADDR", ":9100"),
	}

	var err error
	if cfg.MediaSafety, err = loadClassifier("ENABLE_NSFW_CLASSIFICATION", "NSFW_DETECTOR_ENDPOINT", "NSFW_DETECTOR_TOKEN", ""); err != nil {
		return nil, err
	}
	if cfg.Language, err = loadClassifier("ENABLE_LANGUAGE_DETECTION", "LANGUAGE_DETECTOR_ENDPOINT", "LANGUAGE_DETECTOR_TOKEN", "LANGUAGE_DETECTOR_TRUNCATE_LENGTH"); err != nil {
		return nil, err
	}
	if cfg.HateSpeech, err = loadClassifier("ENABLE_HATE_SPEECH_DETECTION", "HATE_SPEECH_DETECTOR_ENDPOINT", "HATE_SPEECH_DETECTOR_TOKEN", "HATE_SPEECH_DETECTOR_TRUNCATE_LENGTH"); err != nil {
		return nil, err
	}
	if cfg.Sentiment, err = loadClassifier("ENABLE_SENTIMENT_ANALYSIS", "SENTIMENT_ANALYSIS_ENDPOINT", "SENTIMENT_ANALYSIS_TOKEN", "SENTIMENT_ANALYSIS_TRUNCATE_LENGTH"); err != nil {
		return nil, err
	}
	if cfg.Topic, err = loadClassifier("ENABLE_TOPIC_CLASSIFICATION", "TOPIC_CLASSIFICATION_ENDPOINT", "TOPIC_CLASSIFICATION_TOKEN", "TOPIC_CLASSIFICATION_TRUNCATE_LENGTH"); err != nil {
		return nil, err
	}

	freshnessMinutes, err := envInt("EVENT_FRESHNESS_WINDOW_MINUTES", 10)
	if err != nil {
		return nil, err
	}
	cfg.FreshnessWindow = time.Duration(freshnessMinutes) * time.Minute

	delayMs, err := envInt("NOTE_PUBLISH_DELAY_MS", 1000)
	if err != nil {
		return nil, err
	}
	cfg.NotePublishDelay = time.Duration(delayMs) * time.Millisecond

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var hexKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Validate checks required fields and derives the public key.
func (c *Config) Validate() error {
	if len(c.SourceRelays) == 0 {
		return errors.WrapFatal(errors.ErrMissingConfig, "config", "Validate", "RELAYS_SOURCE must list at least one relay")
	}
	if len(c.TargetRelays) == 0 {
		return errors.WrapFatal(errors.ErrMissingConfig, "config", "Validate", "RELAYS_TO_PUBLISH must list at least one relay")
	}
	if c.PrivateKey == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "config", "Validate", "MONITORING_BOT_PRIVATE_KEY is required")
	}
	if !hexKeyPattern.MatchString(c.PrivateKey) {
		return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate", "MONITORING_BOT_PRIVATE_KEY must be 64 hex characters")
	}

	pub, err := nostr.GetPublicKey(c.PrivateKey)
	if err != nil {
		return errors.WrapFatal(err, "config", "Validate", "deriving public key")
	}
	c.PublicKey = pub

	for name, cc := range map[string]ClassifierConfig{
		"NSFW_DETECTOR_ENDPOINT":        c.MediaSafety,
		"LANGUAGE_DETECTOR_ENDPOINT":    c.Language,
		"HATE_SPEECH_DETECTOR_ENDPOINT": c.HateSpeech,
		"SENTIMENT_ANALYSIS_ENDPOINT":   c.Sentiment,
		"TOPIC_CLASSIFICATION_ENDPOINT": c.Topic,
	} {
		if cc.Enabled && cc.Endpoint == "" {
			return errors.WrapFatal(errors.ErrMissingConfig, "config", "Validate",
				fmt.Sprintf("%s is required when its stage is enabled", name))
		}
	}

	if c.SidechannelEnabled && len(c.SidechannelBrokers) == 0 {
		return errors.WrapFatal(errors.ErrMissingConfig, "config", "Validate",
			"SIDECHANNEL_BROKER_TO_PUBLISH is required when side-channel publish is enabled")
	}

	if c.FreshnessWindow <= 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate", "EVENT_FRESHNESS_WINDOW_MINUTES must be positive")
	}
	if c.NotePublishDelay < 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate", "NOTE_PUBLISH_DELAY_MS must not be negative")
	}

	for _, pattern := range c.ExtraMediaURLPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return errors.WrapFatal(err, "config", "Validate",
				fmt.Sprintf("EXTRA_MEDIA_URL_PATTERNS entry %q is not a valid regex", pattern))
		}
	}

	return nil
}

func loadClassifier(enableKey, endpointKey, tokenKey, truncateKey string) (ClassifierConfig, error) {
	cc := ClassifierConfig{
		Enabled:  envBool(enableKey, false),
		Endpoint: strings.TrimSpace(os.Getenv(endpointKey)),
		Token:    strings.TrimSpace(os.Getenv(tokenKey)),
	}
	if truncateKey != "" {
		n, err := envInt(truncateKey, 350)
		if err != nil {
			return ClassifierConfig{}, err
		}
		if n <= 0 {
			return ClassifierConfig{}, errors.WrapFatal(errors.ErrInvalidConfig, "config", "Load",
				fmt.Sprintf("%s must be positive", truncateKey))
		}
		cc.TruncateLength = n
	}
	return cc, nil
}
