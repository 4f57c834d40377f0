package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// ClientConfig configures the voice client. The four VAD values are the
// speech-boundary policy surface and must stay overridable.
type ClientConfig struct {
	Env       string
	ServerURL string

	VADThreshold    float64
	VADSilence      time.Duration
	VADMinSpeech    time.Duration
	VADMinBlobBytes int
	FrameInterval   time.Duration
	IdleTimeout     time.Duration
	CaptureRate     int
	PlaybackRate    int
}

func LoadClient() (ClientConfig, error) {
	c := ClientConfig{}
	var parseErrs []error

	c.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.ServerURL = strings.TrimSpace(os.Getenv("VOICE_SERVER_URL"))

	{
		f, err := optFloat("VAD_THRESHOLD", 40)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.VADThreshold = f
	}
	{
		n, err := optInt("VAD_SILENCE_MS", 1000)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.VADSilence = time.Duration(n) * time.Millisecond
	}
	{
		n, err := optInt("VAD_MIN_SPEECH_MS", 800)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.VADMinSpeech = time.Duration(n) * time.Millisecond
	}
	{
		n, err := optInt("VAD_MIN_BLOB_BYTES", 3000)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.VADMinBlobBytes = n
	}
	{
		n, err := optInt("VAD_FRAME_MS", 50)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.FrameInterval = time.Duration(n) * time.Millisecond
	}
	c.IdleTimeout = mustDuration("IDLE_TIMEOUT")
	{
		n, err := optInt("CAPTURE_SAMPLE_RATE", 16000)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.CaptureRate = n
	}
	{
		n, err := optInt("PLAYBACK_SAMPLE_RATE", 24000)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.PlaybackRate = n
	}

	if err := joinErrors(parseErrs); err != nil {
		return ClientConfig{}, err
	}
	if c.Env == "" {
		c.Env = "local"
	}
	if c.ServerURL == "" {
		c.ServerURL = "ws://localhost:8000/ws/call"
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 8 * time.Second
	}
	if err := c.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return c, nil
}

func (c ClientConfig) Validate() error {
	var errs []error

	if u, err := url.Parse(c.ServerURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Errorf("VOICE_SERVER_URL must be a ws:// or wss:// url, got %q", c.ServerURL))
	}
	if c.VADThreshold < 0 || c.VADThreshold > 255 {
		errs = append(errs, fmt.Errorf("VAD_THRESHOLD must be within [0, 255], got %v", c.VADThreshold))
	}
	if c.VADSilence <= 0 {
		errs = append(errs, errors.New("VAD_SILENCE_MS must be > 0"))
	}
	if c.VADMinSpeech < 0 {
		errs = append(errs, errors.New("VAD_MIN_SPEECH_MS must be >= 0"))
	}
	if c.VADMinBlobBytes < 0 {
		errs = append(errs, errors.New("VAD_MIN_BLOB_BYTES must be >= 0"))
	}
	if c.FrameInterval <= 0 || c.FrameInterval >= time.Second {
		errs = append(errs, fmt.Errorf("VAD_FRAME_MS must be within (0, 1000), got %s", c.FrameInterval))
	}
	if c.CaptureRate <= 0 || c.PlaybackRate <= 0 {
		errs = append(errs, errors.New("sample rates must be > 0"))
	}

	return joinErrors(errs)
}
