package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const (
	SampleRate = 16000

	defaultFramesPerBuffer = 1024
	defaultBufferMs        = 30000
	channels               = 1
)

// SampleWriter receives a copy of every captured buffer.
type SampleWriter interface {
	Write(samples []float32) error
}

type CaptureConfig struct {
	// PortAudio device index, -1 selects the default input device.
	DeviceID        int
	SampleRate      int
	FramesPerBuffer int
	// Amount of audio retained for Get.
	BufferMs int
}

func (c CaptureConfig) IsValid() error {
	if c.DeviceID < -1 {
		return fmt.Errorf("invalid DeviceID: should be -1 or a device index")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: should be greater than 0")
	}
	if c.FramesPerBuffer <= 0 {
		return fmt.Errorf("invalid FramesPerBuffer: should be greater than 0")
	}
	if c.BufferMs <= 0 {
		return fmt.Errorf("invalid BufferMs: should be greater than 0")
	}
	return nil
}

func (c *CaptureConfig) SetDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = SampleRate
	}
	if c.FramesPerBuffer == 0 {
		c.FramesPerBuffer = defaultFramesPerBuffer
	}
	if c.BufferMs == 0 {
		c.BufferMs = defaultBufferMs
	}
}

// Capture records mono audio from an input device into a ring buffer. Reads
// happen on a background goroutine between Resume and Pause.
type Capture struct {
	cfg    CaptureConfig
	stream *portaudio.Stream
	in     []float32
	ring   *RingBuffer
	device string

	mu      sync.Mutex
	running bool
	tap     SampleWriter
	wg      sync.WaitGroup
}

func NewCapture(cfg CaptureConfig) (*Capture, error) {
	cfg.SetDefaults()
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	c := &Capture{
		cfg:  cfg,
		in:   make([]float32, cfg.FramesPerBuffer),
		ring: NewRingBuffer(cfg.BufferMs * cfg.SampleRate / 1000),
	}

	stream, device, err := c.openStream()
	if err != nil {
		if err := portaudio.Terminate(); err != nil {
			slog.Error("failed to terminate PortAudio", slog.String("err", err.Error()))
		}
		return nil, err
	}
	c.stream = stream
	c.device = device

	slog.Debug("audio capture initialized",
		slog.String("device", device),
		slog.Int("sampleRate", cfg.SampleRate),
		slog.Int("framesPerBuffer", cfg.FramesPerBuffer))

	return c, nil
}

func (c *Capture) openStream() (*portaudio.Stream, string, error) {
	if c.cfg.DeviceID < 0 {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get default input device: %w", err)
		}

		stream, err := portaudio.OpenDefaultStream(channels, 0, float64(c.cfg.SampleRate), len(c.in), c.in)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open audio stream: %w", err)
		}

		return stream, device.Name, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get devices: %w", err)
	}

	if c.cfg.DeviceID >= len(devices) {
		return nil, "", fmt.Errorf("capture device %d not found", c.cfg.DeviceID)
	}

	device := devices[c.cfg.DeviceID]
	if device.MaxInputChannels < channels {
		return nil, "", fmt.Errorf("capture device %d (%s) has no input channels", c.cfg.DeviceID, device.Name)
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(c.cfg.SampleRate),
		FramesPerBuffer: len(c.in),
	}, c.in)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open audio stream: %w", err)
	}

	return stream, device.Name, nil
}

// DeviceName returns the name of the input device in use.
func (c *Capture) DeviceName() string {
	return c.device
}

func (c *Capture) SampleRate() int {
	return c.cfg.SampleRate
}

// SetTap makes w receive every buffer read from now on. Passing nil removes
// the tap.
func (c *Capture) SetTap(w SampleWriter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tap = w
}

func (c *Capture) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	c.running = true

	c.wg.Add(1)
	go c.readLoop()

	return nil
}

func (c *Capture) readLoop() {
	defer c.wg.Done()

	for {
		err := c.stream.Read()

		c.mu.Lock()
		running := c.running
		tap := c.tap
		c.mu.Unlock()

		if !running {
			return
		}

		if err != nil {
			// Overflows are expected when the host is busy.
			slog.Debug("failed to read audio", slog.String("err", err.Error()))
			continue
		}

		c.ring.Write(c.in)

		if tap != nil {
			if err := tap.Write(c.in); err != nil {
				slog.Error("failed to write to audio tap", slog.String("err", err.Error()))
			}
		}
	}
}

func (c *Capture) Pause() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	err := c.stream.Stop()
	c.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to stop audio stream: %w", err)
	}

	return nil
}

// Get returns the last ms milliseconds of audio captured since the last
// Clear. All of it is returned when ms is 0.
func (c *Capture) Get(ms int) []float32 {
	return c.ring.Last(ms * c.cfg.SampleRate / 1000)
}

func (c *Capture) Clear() {
	c.ring.Clear()
}

func (c *Capture) Close() error {
	if err := c.Pause(); err != nil {
		slog.Error("failed to pause capture", slog.String("err", err.Error()))
	}

	if err := c.stream.Close(); err != nil {
		return fmt.Errorf("failed to close audio stream: %w", err)
	}

	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}

	return nil
}

type DeviceInfo struct {
	ID                int
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	IsDefault         bool
}

// InputDevices lists the devices that can be used for capture.
func InputDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer func() {
		if err := portaudio.Terminate(); err != nil {
			slog.Error("failed to terminate PortAudio", slog.String("err", err.Error()))
		}
	}()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	var defaultName string
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defaultName = def.Name
	}

	var out []DeviceInfo
	for i, dev := range devices {
		if dev.MaxInputChannels == 0 {
			continue
		}
		out = append(out, DeviceInfo{
			ID:                i,
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			IsDefault:         dev.Name == defaultName,
		})
	}

	return out, nil
}
