package config

import (
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/relaybridge/errors"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RELAYS_SOURCE", "wss://relay-a.example.com,wss://relay-b.example.com")
	t.Setenv("RELAYS_TO_PUBLISH", "wss://target.example.com")
	t.Setenv("MONITORING_BOT_PRIVATE_KEY", nostr.GeneratePrivateKey())
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"wss://relay-a.example.com", "wss://relay-b.example.com"}, cfg.SourceRelays)
	assert.Equal(t, []string{"wss://target.example.com"}, cfg.TargetRelays)
	assert.NotEmpty(t, cfg.PublicKey)
	assert.Equal(t, 10*time.Minute, cfg.FreshnessWindow)
	assert.Equal(t, time.Second, cfg.NotePublishDelay)
	assert.Equal(t, ":9100", cfg.MetricsListenAddr)
	assert.False(t, cfg.MediaSafety.Enabled)
	assert.False(t, cfg.SidechannelEnabled)
}

func TestLoad_MissingSourceRelaysFatal(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RELAYS_SOURCE", "")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestLoad_MissingTargetRelaysFatal(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RELAYS_TO_PUBLISH", " , ")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestLoad_PrivateKeyValidation(t *testing.T) {
	setRequiredEnv(t)

	t.Setenv("MONITORING_BOT_PRIVATE_KEY", "")
	_, err := Load()
	assert.True(t, errors.IsFatal(err))

	t.Setenv("MONITORING_BOT_PRIVATE_KEY", "not-hex")
	_, err = Load()
	assert.True(t, errors.IsFatal(err))
}

func TestLoad_DerivesPublicKey(t *testing.T) {
	setRequiredEnv(t)
	sk := nostr.GeneratePrivateKey()
	t.Setenv("MONITORING_BOT_PRIVATE_KEY", sk)

	cfg, err := Load()
	require.NoError(t, err)

	expected, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	assert.Equal(t, expected, cfg.PublicKey)
}

func TestLoad_ClassifierStage(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENABLE_LANGUAGE_DETECTION", "true")
	t.Setenv("LANGUAGE_DETECTOR_ENDPOINT", "http://localhost:8000/detect")
	t.Setenv("LANGUAGE_DETECTOR_TOKEN", "secret")
	t.Setenv("LANGUAGE_DETECTOR_TRUNCATE_LENGTH", "200")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Language.Enabled)
	assert.Equal(t, "http://localhost:8000/detect", cfg.Language.Endpoint)
	assert.Equal(t, "secret", cfg.Language.Token)
	assert.Equal(t, 200, cfg.Language.TruncateLength)
}

func TestLoad_EnabledStageWithoutEndpointFatal(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENABLE_NSFW_CLASSIFICATION", "true")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestLoad_TruncateLengthDefault(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENABLE_SENTIMENT_ANALYSIS", "true")
	t.Setenv("SENTIMENT_ANALYSIS_ENDPOINT", "http://localhost:8001")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 350, cfg.Sentiment.TruncateLength)
}

func TestLoad_BadNumericFatal(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EVENT_FRESHNESS_WINDOW_MINUTES", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))

	t.Setenv("EVENT_FRESHNESS_WINDOW_MINUTES", "-1")
	_, err = Load()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestLoad_SidechannelRequiresBrokers(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENABLE_SIDECHANNEL_PUBLISH", "true")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))

	t.Setenv("SIDECHANNEL_BROKER_TO_PUBLISH", "nats://localhost:4222")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.SidechannelBrokers)
}

func TestLoad_BadMediaPatternFatal(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EXTRA_MEDIA_URL_PATTERNS", "([unclosed")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", " a , ,b,")
	assert.Equal(t, []string{"a", "b"}, envList("TEST_LIST"))

	t.Setenv("TEST_LIST", "")
	assert.Nil(t, envList("TEST_LIST"))
}

func TestMetricsAddrCanBeDisabled(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("METRICS_LISTEN_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "", cfg.MetricsListenAddr)
}
