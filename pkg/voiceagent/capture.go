package voiceagent

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// AudioSink accepts linear16 frames. *Session is the production sink.
type AudioSink interface {
	SendAudio(frame []byte) error
}

// Source delivers mono float32 buffers at SampleRate through a callback.
type Source interface {
	SampleRate() int
	Start(onBuffer func([]float32)) error
	Stop() error
}

// Capture pushes source audio through the resampler into the sink.
type Capture struct {
	source    Source
	sink      AudioSink
	resampler *Resampler
	logger    *Logger

	mu        sync.Mutex
	running   bool
	handlers  []AudioDataHandler
	amplitude atomic.Uint32

	framesSent    atomic.Int64
	framesDropped atomic.Int64
}

// NewCapture resamples from the source rate to targetRate.
func NewCapture(source Source, sink AudioSink, targetRate int) (*Capture, error) {
	if source == nil || sink == nil {
		return nil, errors.New("capture: source and sink are required")
	}
	r, err := NewResampler(source.SampleRate(), targetRate)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return &Capture{
		source:    source,
		sink:      sink,
		resampler: r,
		logger:    GetGlobalLogger().WithComponent("Capture"),
	}, nil
}

func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("capture: already running")
	}
	if err := c.source.Start(c.Process); err != nil {
		return fmt.Errorf("capture: start source: %w", err)
	}
	c.running = true
	c.logger.Info("Capture started")
	return nil
}

func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	if err := c.source.Stop(); err != nil {
		return fmt.Errorf("capture: stop source: %w", err)
	}
	c.logger.WithField("frames_sent", c.framesSent.Load()).
		WithField("frames_dropped", c.framesDropped.Load()).
		Info("Capture stopped")
	return nil
}

// Process handles one source buffer. Sources call it from their own goroutine.
func (c *Capture) Process(buf []float32) {
	if len(buf) == 0 {
		return
	}
	c.amplitude.Store(math.Float32bits(meanAbs(buf)))

	c.mu.Lock()
	handlers := c.handlers
	c.mu.Unlock()
	if len(handlers) > 0 {
		cp := make([]float32, len(buf))
		copy(cp, buf)
		for _, h := range handlers {
			h(cp)
		}
	}

	frame := EncodePCM16LE(c.resampler.Resample(buf))
	if err := c.sink.SendAudio(frame); err != nil {
		c.framesDropped.Add(1)
		return
	}
	c.framesSent.Add(1)
}

// AddAudioDataHandler observes raw capture buffers before resampling.
func (c *Capture) AddAudioDataHandler(h AudioDataHandler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()
}

// Amplitude is the mean absolute sample value of the last buffer.
func (c *Capture) Amplitude() float32 {
	return math.Float32frombits(c.amplitude.Load())
}

func (c *Capture) FramesSent() int64 { return c.framesSent.Load() }

func (c *Capture) FramesDropped() int64 { return c.framesDropped.Load() }

func meanAbs(buf []float32) float32 {
	var sum float64
	for _, v := range buf {
		sum += math.Abs(float64(v))
	}
	return float32(sum / float64(len(buf)))
}
