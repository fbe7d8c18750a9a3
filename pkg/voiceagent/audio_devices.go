package voiceagent

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// AudioDevice represents an audio device
type AudioDevice struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefaultInput    bool
	IsDefaultOutput   bool
	HostAPI           string
}

func (d AudioDevice) IsInput() bool { return d.MaxInputChannels > 0 }

func (d AudioDevice) IsOutput() bool { return d.MaxOutputChannels > 0 }

// ListAudioDevices enumerates PortAudio devices. IDs are indexes usable as
// VOICEAGENT_AUDIO_DEVICE_ID.
func ListAudioDevices() ([]AudioDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	logger := GetGlobalLogger().WithComponent("AudioDevices")

	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		logger.WithError(err).Warn("No default input device")
	}
	defaultOutput, err := portaudio.DefaultOutputDevice()
	if err != nil {
		logger.WithError(err).Warn("No default output device")
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	out := make([]AudioDevice, 0, len(devices))
	for i, dev := range devices {
		hostAPI := "Unknown"
		if dev.HostApi != nil {
			hostAPI = dev.HostApi.Name
		}
		out = append(out, AudioDevice{
			ID:                i,
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			MaxOutputChannels: dev.MaxOutputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			IsDefaultInput:    defaultInput != nil && dev == defaultInput,
			IsDefaultOutput:   defaultOutput != nil && dev == defaultOutput,
			HostAPI:           hostAPI,
		})
	}
	return out, nil
}

// FilterDevices returns the devices matching keep.
func FilterDevices(devices []AudioDevice, keep func(AudioDevice) bool) []AudioDevice {
	var out []AudioDevice
	for _, d := range devices {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}
