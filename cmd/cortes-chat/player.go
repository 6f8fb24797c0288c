package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

const (
	playbackSampleRate = 16000
	playbackChannels   = 1
)

// malgoPlayer plays PCM16 mono 16 kHz through the default output device.
type malgoPlayer struct {
	actx   *malgo.AllocatedContext
	device *malgo.Device

	mu     sync.Mutex
	buf    []byte
	waiter chan struct{}
}

func newMalgoPlayer() (*malgoPlayer, error) {
	actx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	p := &malgoPlayer{actx: actx}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = playbackChannels
	cfg.SampleRate = playbackSampleRate
	cfg.Alsa.NoMMap = 1
	cfg.PeriodSizeInFrames = playbackSampleRate / 20
	cfg.Periods = 4

	device, err := malgo.InitDevice(actx.Context, cfg, malgo.DeviceCallbacks{Data: p.fill})
	if err != nil {
		_ = actx.Uninit()
		actx.Free()
		return nil, fmt.Errorf("init playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = actx.Uninit()
		actx.Free()
		return nil, fmt.Errorf("start playback device: %w", err)
	}
	p.device = device
	return p, nil
}

// Play queues pcm and waits until the device has consumed it.
func (p *malgoPlayer) Play(ctx context.Context, pcm []byte) error {
	done := make(chan struct{})
	p.mu.Lock()
	if p.waiter != nil {
		close(p.waiter)
	}
	p.buf = append(p.buf[:0], pcm...)
	p.waiter = done
	p.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.mu.Lock()
		if p.waiter == done {
			p.buf = p.buf[:0]
			p.waiter = nil
		}
		p.mu.Unlock()
		return ctx.Err()
	}
}

func (p *malgoPlayer) fill(out, _ []byte, _ uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := copy(out, p.buf)
	clear(out[n:])
	p.buf = p.buf[n:]
	if len(p.buf) == 0 && p.waiter != nil {
		close(p.waiter)
		p.waiter = nil
	}
}

func (p *malgoPlayer) Close() error {
	if p.device != nil {
		p.device.Uninit()
	}
	if p.actx != nil {
		err := p.actx.Uninit()
		p.actx.Free()
		return err
	}
	return nil
}
