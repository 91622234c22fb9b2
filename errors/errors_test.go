package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "Gate", "Admit", "verify signature")

	assert.EqualError(t, err, "Gate.Admit: verify signature failed: boom")
	assert.True(t, stderrors.Is(err, base))
	assert.Nil(t, Wrap(nil, "Gate", "Admit", "anything"))
}

func TestClassifiedWrappers(t *testing.T) {
	base := stderrors.New("boom")

	transient := WrapTransient(base, "Classifier", "Classify", "post request")
	invalid := WrapInvalid(base, "Gate", "Admit", "validate structure")
	fatal := WrapFatal(base, "Config", "Load", "parse freshness window")

	assert.True(t, IsTransient(transient))
	assert.False(t, IsInvalid(transient))
	assert.True(t, IsInvalid(invalid))
	assert.True(t, IsFatal(fatal))
	assert.False(t, IsFatal(transient))

	// Classification survives further wrapping
	wrapped := fmt.Errorf("outer: %w", fatal)
	assert.True(t, IsFatal(wrapped))
}

func TestStandardErrorClassification(t *testing.T) {
	assert.True(t, IsTransient(ErrConnectionLost))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsInvalid(ErrInvalidSignature))
	assert.True(t, IsFatal(ErrMissingConfig))
	assert.Equal(t, ErrorFatal, Classify(ErrInvalidConfig))
	assert.Equal(t, ErrorInvalid, Classify(ErrInvalidStructure))
	assert.Equal(t, ErrorTransient, Classify(stderrors.New("something else")))
}

func TestIsRejection(t *testing.T) {
	for _, err := range []error{
		ErrDuplicateEvent,
		ErrStaleEvent,
		ErrInvalidStructure,
		ErrInvalidSignature,
	} {
		assert.True(t, IsRejection(err), "expected rejection: %v", err)
	}

	assert.False(t, IsRejection(ErrPublishFailed))
	assert.False(t, IsRejection(nil))

	wrapped := WrapInvalid(ErrStaleEvent, "Gate", "Admit", "check freshness")
	assert.True(t, IsRejection(wrapped))
}

func TestTransientPatternMatching(t *testing.T) {
	assert.True(t, IsTransient(stderrors.New("dial tcp: i/o timeout")))
	assert.True(t, IsTransient(stderrors.New("relay temporarily unavailable")))
	assert.False(t, IsTransient(stderrors.New("bad event id")))
}
