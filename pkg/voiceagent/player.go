package voiceagent

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// playbackBuffer is a bounded FIFO of float32 samples shared between the
// frame handler and the audio callback.
type playbackBuffer struct {
	mu      sync.Mutex
	samples []float32
	max     int
	dropped int
}

func newPlaybackBuffer(max int) *playbackBuffer {
	return &playbackBuffer{max: max}
}

// push appends samples, dropping the oldest audio once max is exceeded.
func (b *playbackBuffer) push(samples []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = append(b.samples, samples...)
	if over := len(b.samples) - b.max; b.max > 0 && over > 0 {
		b.samples = b.samples[over:]
		b.dropped += over
	}
}

// fill copies queued samples into out and pads the rest with silence.
// It returns the number of real samples written.
func (b *playbackBuffer) fill(out []float32) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := copy(out, b.samples)
	b.samples = b.samples[n:]
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	return n
}

func (b *playbackBuffer) clear() {
	b.mu.Lock()
	b.samples = nil
	b.mu.Unlock()
}

func (b *playbackBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Player plays inbound linear16 agent audio through the default output device.
type Player struct {
	sampleRate int
	bufferSize int
	buf        *playbackBuffer
	logger     *Logger

	mu     sync.Mutex
	stream *portaudio.Stream
}

// NewPlayer queues at most 30 seconds of audio.
func NewPlayer(cfg *Config) *Player {
	return &Player{
		sampleRate: cfg.OutputSampleRate,
		bufferSize: 1024,
		buf:        newPlaybackBuffer(cfg.OutputSampleRate * 30),
		logger:     GetGlobalLogger().WithComponent("Player"),
	}
}

func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(p.sampleRate), p.bufferSize, func(out []float32) {
		p.buf.fill(out)
	})
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("start output stream: %w", err)
	}
	p.stream = stream
	p.logger.WithField("sample_rate", p.sampleRate).Info("Playback started")
	return nil
}

// Enqueue queues one binary frame of little-endian int16 samples.
func (p *Player) Enqueue(frame []byte) {
	p.buf.push(Int16ToFloat32(DecodePCM16LE(frame)))
}

// HandleFrame is a FrameHandler that plays binary frames and flushes queued
// audio when the user starts speaking over the agent.
func (p *Player) HandleFrame(f InboundFrame) {
	switch f.Kind {
	case FrameBinary:
		p.Enqueue(f.Data)
	case FrameText:
		if t, err := PeekEventType(f.Data); err == nil && t == EventUserStartedSpeaking {
			p.Flush()
		}
	}
}

// Flush drops queued audio.
func (p *Player) Flush() {
	p.buf.clear()
}

// Queued returns the number of samples waiting to be played.
func (p *Player) Queued() int {
	return p.buf.len()
}

func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return nil
	}
	var firstErr error
	if err := p.stream.Stop(); err != nil {
		firstErr = fmt.Errorf("stop output stream: %w", err)
	}
	if err := p.stream.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close output stream: %w", err)
	}
	p.stream = nil
	p.buf.clear()
	portaudio.Terminate()
	p.logger.Info("Playback stopped")
	return firstErr
}
