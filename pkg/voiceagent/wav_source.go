package voiceagent

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// WAVSource replays a mono WAV file as if it came from a microphone.
// 16-bit PCM and 32-bit float files are supported.
type WAVSource struct {
	samples    []float32
	sampleRate int
	chunkSize  int
	// Realtime paces chunks at the file's sample rate.
	Realtime bool

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// LoadWAVSource reads path fully into memory.
func LoadWAVSource(path string, chunkSize int) (*WAVSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wav %s: %w", path, err)
	}
	return ParseWAV(data, chunkSize)
}

// ParseWAV decodes an in-memory WAV file.
func ParseWAV(data []byte, chunkSize int) (*WAVSource, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultCaptureBufferSize
	}
	r := bytes.NewReader(data)

	var riff struct {
		ID     [4]byte
		Size   uint32
		Format [4]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return nil, fmt.Errorf("wav header: %w", err)
	}
	if string(riff.ID[:]) != "RIFF" || string(riff.Format[:]) != "WAVE" {
		return nil, errors.New("wav header: not a RIFF/WAVE file")
	}

	var (
		format        uint16
		channels      uint16
		sampleRate    uint32
		bitsPerSample uint16
		haveFmt       bool
	)
	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("wav: no data chunk")
			}
			return nil, fmt.Errorf("wav chunk: %w", err)
		}

		switch string(chunk.ID[:]) {
		case "fmt ":
			body := make([]byte, chunk.Size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("wav fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return nil, errors.New("wav fmt chunk too short")
			}
			format = binary.LittleEndian.Uint16(body[0:])
			channels = binary.LittleEndian.Uint16(body[2:])
			sampleRate = binary.LittleEndian.Uint32(body[4:])
			bitsPerSample = binary.LittleEndian.Uint16(body[14:])
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, errors.New("wav: data chunk before fmt chunk")
			}
			if channels != 1 {
				return nil, fmt.Errorf("wav: %d channels, only mono is supported", channels)
			}
			size := int(chunk.Size)
			if size > r.Len() {
				size = r.Len()
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("wav data chunk: %w", err)
			}
			samples, err := decodeWAVSamples(body, format, bitsPerSample)
			if err != nil {
				return nil, err
			}
			return &WAVSource{
				samples:    samples,
				sampleRate: int(sampleRate),
				chunkSize:  chunkSize,
			}, nil
		default:
			skip := int64(chunk.Size) + int64(chunk.Size%2)
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("wav skip chunk: %w", err)
			}
		}
	}
}

func decodeWAVSamples(body []byte, format, bits uint16) ([]float32, error) {
	switch {
	case format == wavFormatPCM && bits == 16:
		return Int16ToFloat32(DecodePCM16LE(body)), nil
	case format == wavFormatFloat && bits == 32:
		samples := make([]float32, len(body)/4)
		for i := range samples {
			samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
		}
		return samples, nil
	default:
		return nil, fmt.Errorf("wav: unsupported format %d with %d bits per sample", format, bits)
	}
}

func (w *WAVSource) SampleRate() int { return w.sampleRate }

// Len is the number of samples in the file.
func (w *WAVSource) Len() int { return len(w.samples) }

func (w *WAVSource) Start(onBuffer func([]float32)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		return errors.New("wav source already started")
	}
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.stream(onBuffer, w.stop, w.done)
	return nil
}

func (w *WAVSource) stream(onBuffer func([]float32), stop, done chan struct{}) {
	defer close(done)
	for i := 0; i < len(w.samples); i += w.chunkSize {
		select {
		case <-stop:
			return
		default:
		}
		end := i + w.chunkSize
		if end > len(w.samples) {
			end = len(w.samples)
		}
		chunk := w.samples[i:end]
		onBuffer(chunk)

		if w.Realtime {
			pause := time.Duration(float64(len(chunk)) / float64(w.sampleRate) * float64(time.Second))
			select {
			case <-stop:
				return
			case <-time.After(pause):
			}
		}
	}
}

// Done is closed when the whole file was delivered or the source stopped.
func (w *WAVSource) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

func (w *WAVSource) Stop() error {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.stop = nil
	w.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}
