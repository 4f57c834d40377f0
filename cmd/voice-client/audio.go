package main

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
)

// devices owns the audio context, the microphone and the speaker for one call.
type devices struct {
	malgoCtx *malgo.AllocatedContext
	mic      *micSource
	speaker  *speaker
}

func openDevices(captureRate, playbackRate int) (*devices, error) {
	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime
	mctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	mic, err := newMicSource(mctx.Context, captureRate)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, err
	}

	// 100ms of 16-bit mono at the playback rate.
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   playbackRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	})
	if err != nil {
		_ = mic.Close()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	return &devices{malgoCtx: mctx, mic: mic, speaker: &speaker{ctx: otoCtx}}, nil
}

// close releases the context; the mic is closed by the turn loop.
func (d *devices) close() {
	d.speaker.Stop()
	_ = d.mic.Close()
	_ = d.malgoCtx.Uninit()
	d.malgoCtx.Free()
}

// micSource buffers captured PCM between sampling ticks.
type micSource struct {
	device *malgo.Device
	mu     sync.Mutex
	buf    []byte
	closed bool
}

func newMicSource(ctx malgo.Context, sampleRate int) (*micSource, error) {
	m := &micSource{buf: make([]byte, 0, sampleRate*2)}

	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.Capture.Format = malgo.FormatS16
	dc.Capture.Channels = 1
	dc.SampleRate = uint32(sampleRate)
	dc.PeriodSizeInMilliseconds = 20

	device, err := malgo.InitDevice(ctx, dc, malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			m.mu.Lock()
			m.buf = append(m.buf, in...)
			m.mu.Unlock()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start microphone: %w", err)
	}
	m.device = device
	return m, nil
}

func (m *micSource) Drain() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.buf) == 0 {
		return nil
	}
	out := m.buf
	m.buf = make([]byte, 0, cap(out))
	return out
}

// Close stops the device. Safe to call more than once.
func (m *micSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	_ = m.device.Stop()
	m.device.Uninit()
	return nil
}

// speaker plays one reply at a time.
type speaker struct {
	ctx    *oto.Context
	mu     sync.Mutex
	player *oto.Player
	stop   chan struct{}
}

func (s *speaker) Play(pcm []byte) (<-chan struct{}, error) {
	s.Stop()

	p := s.ctx.NewPlayer(bytes.NewReader(pcm))
	stop := make(chan struct{})
	done := make(chan struct{})

	s.mu.Lock()
	s.player, s.stop = p, stop
	s.mu.Unlock()

	p.Play()
	go func() {
		defer close(done)
		t := time.NewTicker(20 * time.Millisecond)
		defer t.Stop()
		for p.IsPlaying() {
			select {
			case <-stop:
				return
			case <-t.C:
			}
		}
	}()
	return done, nil
}

func (s *speaker) Stop() {
	s.mu.Lock()
	p, stop := s.player, s.stop
	s.player, s.stop = nil, nil
	s.mu.Unlock()
	if p == nil {
		return
	}
	close(stop)
	p.Pause()
	_ = p.Close()
}
