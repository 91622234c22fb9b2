// Package annotation builds the signed classification events that the
// bridge publishes alongside original notes. An annotation is a kind 9978
// parameterized event whose d/t tags name the classification kind and
// whose e/p tags reference the original note and its author.
package annotation

import (
	"encoding/json"

	"github.com/nbd-wtf/go-nostr"

	"github.com/c360/relaybridge/errors"
)

// Kind is the event kind used for all classification annotations.
const Kind = 9978

// Classification labels. The d and t tags carry
// "nostr-<label>-classification".
const (
	LabelNsfw       = "nsfw"
	LabelLanguage   = "language"
	LabelHateSpeech = "hate-speech"
	LabelSentiment  = "sentiment"
	LabelTopic      = "topic"
)

// TagValue returns the d/t tag value for a classification label.
func TagValue(label string) string {
	return "nostr-" + label + "-classification"
}

// Builder constructs and signs annotation events with one bot identity.
type Builder struct {
	privateKey string
	publicKey  string
}

// NewBuilder derives the bot public key from the signing key.
func NewBuilder(privateKey string) (*Builder, error) {
	pub, err := nostr.GetPublicKey(privateKey)
	if err != nil {
		return nil, errors.WrapFatal(err, "annotation", "NewBuilder", "deriving public key")
	}
	return &Builder{privateKey: privateKey, publicKey: pub}, nil
}

// PublicKey returns the bot's public key.
func (b *Builder) PublicKey() string {
	return b.publicKey
}

// Build creates a signed annotation for the given original note. The
// payload is JSON-encoded into the content; the annotation inherits the
// original note's created_at so consumers can order it with the note.
// The event is re-validated after signing and never returned half-valid.
func (b *Builder) Build(label string, payload any, origID, origAuthor string, origCreatedAt nostr.Timestamp) (*nostr.Event, error) {
	content, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.WrapInvalid(err, "annotation", "Build", "encoding payload")
	}

	tagValue := TagValue(label)
	ev := &nostr.Event{
		PubKey:    b.publicKey,
		CreatedAt: origCreatedAt,
		Kind:      Kind,
		Tags: nostr.Tags{
			{"d", tagValue},
			{"t", tagValue},
			{"e", origID},
			{"p", origAuthor},
		},
		Content: string(content),
	}

	if err := ev.Sign(b.privateKey); err != nil {
		return nil, errors.WrapTransient(err, "annotation", "Build", "signing event")
	}

	if err := Validate(ev); err != nil {
		return nil, errors.Wrap(err, "annotation", "Build", "self-validation failed")
	}

	return ev, nil
}

// Validate checks structure and signature of a signed event.
func Validate(ev *nostr.Event) error {
	if ev.ID == "" || ev.PubKey == "" || ev.Sig == "" {
		return errors.ErrInvalidStructure
	}
	if ev.ID != ev.GetID() {
		return errors.ErrInvalidStructure
	}

	ok, err := ev.CheckSignature()
	if err != nil {
		return errors.WrapInvalid(err, "annotation", "Validate", "checking signature")
	}
	if !ok {
		return errors.ErrInvalidSignature
	}
	return nil
}
