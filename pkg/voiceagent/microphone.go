package voiceagent

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// MicrophoneSource captures mono float32 audio with PortAudio.
type MicrophoneSource struct {
	sampleRate int
	bufferSize int
	deviceID   *int
	logger     *Logger

	mu     sync.Mutex
	stream *portaudio.Stream
}

func NewMicrophoneSource(cfg *Config) *MicrophoneSource {
	return &MicrophoneSource{
		sampleRate: cfg.CaptureSampleRate,
		bufferSize: cfg.CaptureBufferSize,
		deviceID:   cfg.AudioDeviceID,
		logger:     GetGlobalLogger().WithComponent("Microphone"),
	}
}

func (m *MicrophoneSource) SampleRate() int { return m.sampleRate }

func (m *MicrophoneSource) Start(onBuffer func([]float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return fmt.Errorf("microphone already started")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}

	callback := func(in []float32) {
		onBuffer(in)
	}

	var stream *portaudio.Stream
	var err error
	if m.deviceID != nil {
		var dev *portaudio.DeviceInfo
		dev, err = inputDevice(*m.deviceID)
		if err == nil {
			params := portaudio.LowLatencyParameters(dev, nil)
			params.Input.Channels = 1
			params.SampleRate = float64(m.sampleRate)
			params.FramesPerBuffer = m.bufferSize
			stream, err = portaudio.OpenStream(params, callback)
		}
	} else {
		stream, err = portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), m.bufferSize, callback)
	}
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("open input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("start input stream: %w", err)
	}

	m.stream = stream
	m.logger.WithField("sample_rate", m.sampleRate).Info("Recording started")
	return nil
}

func (m *MicrophoneSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil
	}

	var firstErr error
	if err := m.stream.Stop(); err != nil {
		firstErr = fmt.Errorf("stop input stream: %w", err)
	}
	if err := m.stream.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close input stream: %w", err)
	}
	m.stream = nil
	portaudio.Terminate()

	m.logger.Info("Recording stopped")
	return firstErr
}

func inputDevice(id int) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if id < 0 || id >= len(devices) {
		return nil, fmt.Errorf("audio device %d not found", id)
	}
	dev := devices[id]
	if dev.MaxInputChannels < 1 {
		return nil, fmt.Errorf("audio device %d (%s) has no input channels", id, dev.Name)
	}
	return dev, nil
}
