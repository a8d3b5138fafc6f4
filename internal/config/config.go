// Package config provides the configuration schema and loader for the
// Levensboek recording engine.
package config

import "time"

// LogLevel controls log verbosity for the engine.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for the Levensboek engine.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	API          APIConfig          `yaml:"api"`
	Capture      CaptureConfig      `yaml:"capture"`
	Upload       UploadConfig       `yaml:"upload"`
	Conversation ConversationConfig `yaml:"conversation"`
	Session      SessionConfig      `yaml:"session"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
}

// APIConfig holds settings for the Levensboek backend API.
type APIConfig struct {
	// BaseURL is the root of the backend API (e.g., "https://api.levensboek.nl").
	BaseURL string `yaml:"base_url"`

	// Token is the bearer token attached to authenticated calls.
	// Leave empty for anonymous access during local development.
	Token string `yaml:"token"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TimeoutSeconds bounds each individual HTTP request. Default: 30.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the per-request timeout as a [time.Duration].
func (a APIConfig) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// CaptureConfig holds device capture and artifact validation settings.
type CaptureConfig struct {
	// ChunkIntervalMS is the recorder data-collection interval in
	// milliseconds. Default: 1000.
	ChunkIntervalMS int `yaml:"chunk_interval_ms"`

	// MinVideoBytes is the minimum artifact size for a video recording.
	// Smaller artifacts are rejected as empty containers. Default: 102400.
	MinVideoBytes int64 `yaml:"min_video_bytes"`

	// MinAudioBytes is the minimum artifact size for an audio recording.
	// Default: 10240.
	MinAudioBytes int64 `yaml:"min_audio_bytes"`

	// VideoWidth and VideoHeight are the target preview resolution requested
	// from the device in video mode. Defaults: 1280x720.
	VideoWidth  int `yaml:"video_width"`
	VideoHeight int `yaml:"video_height"`
}

// ChunkInterval returns the collection interval as a [time.Duration].
func (c CaptureConfig) ChunkInterval() time.Duration {
	if c.ChunkIntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(c.ChunkIntervalMS) * time.Millisecond
}

// UploadConfig holds retry tuning for the upload handshake.
type UploadConfig struct {
	// MaxRetries is the number of retries after the first attempt for
	// network failures and 5xx responses. Default: 2.
	MaxRetries int `yaml:"max_retries"`

	// RetryBaseDelayMS is the initial backoff delay in milliseconds;
	// the delay doubles per attempt. Default: 500.
	RetryBaseDelayMS int `yaml:"retry_base_delay_ms"`
}

// RetryBaseDelay returns the initial backoff delay as a [time.Duration].
func (u UploadConfig) RetryBaseDelay() time.Duration {
	if u.RetryBaseDelayMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(u.RetryBaseDelayMS) * time.Millisecond
}

// ConversationConfig holds settings for the AI interview loop.
type ConversationConfig struct {
	// TranscriptWaitMS is how long the engine waits for a transcript to
	// become available before continuing without one. Default: 4000.
	TranscriptWaitMS int `yaml:"transcript_wait_ms"`

	// TranscriptPollMS is the polling interval while waiting. Default: 1000.
	TranscriptPollMS int `yaml:"transcript_poll_ms"`
}

// TranscriptWait returns the transcript grace period as a [time.Duration].
func (c ConversationConfig) TranscriptWait() time.Duration {
	if c.TranscriptWaitMS <= 0 {
		return 4 * time.Second
	}
	return time.Duration(c.TranscriptWaitMS) * time.Millisecond
}

// TranscriptPoll returns the polling interval as a [time.Duration].
func (c ConversationConfig) TranscriptPoll() time.Duration {
	if c.TranscriptPollMS <= 0 {
		return time.Second
	}
	return time.Duration(c.TranscriptPollMS) * time.Millisecond
}

// SessionConfig holds recording-session presentation settings.
type SessionConfig struct {
	// AdvisoryTTLMS is how long transient advisory messages (permission
	// errors, upload status) stay visible before auto-expiring.
	// Default: 6000.
	AdvisoryTTLMS int `yaml:"advisory_ttl_ms"`
}

// AdvisoryTTL returns the advisory lifetime as a [time.Duration].
func (s SessionConfig) AdvisoryTTL() time.Duration {
	if s.AdvisoryTTLMS <= 0 {
		return 6 * time.Second
	}
	return time.Duration(s.AdvisoryTTLMS) * time.Millisecond
}

// TelemetryConfig holds the metrics endpoint settings.
type TelemetryConfig struct {
	// MetricsAddr is the TCP address the Prometheus /metrics endpoint
	// listens on. Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}
