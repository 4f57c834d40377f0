// Command voice-client places one call to the voice banking server using the
// local microphone and speaker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"voice-banking/internal/audio"
	"voice-banking/internal/client"
	"voice-banking/internal/config"
	"voice-banking/internal/turn"
	"voice-banking/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dev, err := openDevices(cfg.CaptureRate, cfg.PlaybackRate)
	if err != nil {
		log.Error("audio devices unavailable", "err", err)
		os.Exit(1)
	}
	defer dev.close()

	tr, err := client.Dial(ctx, cfg.ServerURL)
	if err != nil {
		log.Error("connect failed", "url", cfg.ServerURL, "err", err)
		dev.close()
		os.Exit(1)
	}
	log.Info("connected", "url", cfg.ServerURL)

	loop := client.NewLoop(client.Options{
		Detector: turn.Config{
			Threshold:   cfg.VADThreshold,
			Silence:     cfg.VADSilence,
			MinSpeech:   cfg.VADMinSpeech,
			MinBlobSize: cfg.VADMinBlobBytes,
		},
		FrameInterval: cfg.FrameInterval,
		IdleTimeout:   cfg.IdleTimeout,
		Capture:       audio.Format{SampleRate: cfg.CaptureRate, Channels: 1},
		Log:           log,
		OnReply:       func(text string) { fmt.Println("Agent:", text) },
	}, dev.mic, dev.speaker, tr)

	if err := loop.Run(ctx); err != nil {
		log.Error("call failed", "err", err)
		dev.close()
		os.Exit(1)
	}
	log.Info("call finished")
}
