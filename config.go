package media

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the pipeline configuration, loadable from YAML.
type Config struct {
	// Refcount selects FrameOwnershipRefcounted.
	Refcount bool `yaml:"refcount"`

	LogLevel string `yaml:"log_level"`

	// Format forces a container format by name (mp4, flv, mpegts, ...).
	Format string `yaml:"format"`

	FlushLimit   int `yaml:"flush_limit"`
	ProbePackets int `yaml:"probe_packets"`

	Decoder DecoderSettings `yaml:"decoder"`
	RTP     RTPSettings     `yaml:"rtp"`
	RTMP    RTMPSettings    `yaml:"rtmp"`
}

// DecoderSettings tunes decoder selection.
type DecoderSettings struct {
	Threads int `yaml:"threads"`

	// PCMFrameSamples caps the samples per call of G.711 decoders.
	PCMFrameSamples int `yaml:"pcm_frame_samples"`

	// Providers maps a codec name to a provider name, e.g. h264: openh264.
	Providers map[string]string `yaml:"providers"`
}

// RTPSettings maps dynamic payload types of rtpdump input.
type RTPSettings struct {
	PayloadTypes map[string]string `yaml:"payload_types"`
	ClockRates   map[string]int    `yaml:"clock_rates"`
}

// RTMPSettings configures RTMP ingest.
type RTMPSettings struct {
	// ProbeTimeout bounds the wait for the second stream once the
	// publisher sent its first packet.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:     "info",
		FlushLimit:   DefaultFlushLimit,
		ProbePackets: defaultProbePackets,
		Decoder: DecoderSettings{
			PCMFrameSamples: defaultG711FrameSamples,
		},
		RTMP: RTMPSettings{
			ProbeTimeout: defaultProbeTimeout,
		},
	}
}

// LoadConfig reads a YAML file over the defaults. An empty path returns the
// defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	var errs []error
	if !isValidLogLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid log_level %q (must be one of: %v)", c.LogLevel, validLogLevels))
	}
	if c.Format != "" {
		if _, err := ParseContainerFormat(c.Format); err != nil {
			errs = append(errs, fmt.Errorf("format: %w", err))
		}
	}
	if c.FlushLimit <= 0 {
		errs = append(errs, fmt.Errorf("invalid flush_limit %d (must be positive)", c.FlushLimit))
	}
	if c.ProbePackets <= 0 {
		errs = append(errs, fmt.Errorf("invalid probe_packets %d (must be positive)", c.ProbePackets))
	}
	if c.Decoder.Threads < 0 {
		errs = append(errs, fmt.Errorf("invalid decoder.threads %d", c.Decoder.Threads))
	}
	if c.Decoder.PCMFrameSamples < 0 {
		errs = append(errs, fmt.Errorf("invalid decoder.pcm_frame_samples %d", c.Decoder.PCMFrameSamples))
	}
	for codec, name := range c.Decoder.Providers {
		if ParseVideoCodec(codec) == VideoCodecUnknown && ParseAudioCodec(codec) == AudioCodecUnknown {
			errs = append(errs, fmt.Errorf("decoder.providers: unknown codec %q", codec))
		}
		if ParseProvider(name) == ProviderAuto && !strings.EqualFold(name, "auto") {
			errs = append(errs, fmt.Errorf("decoder.providers: unknown provider %q", name))
		}
	}
	if _, err := c.PayloadMap(); err != nil {
		errs = append(errs, err)
	}
	if c.RTMP.ProbeTimeout < 0 {
		errs = append(errs, fmt.Errorf("invalid rtmp.probe_timeout %v", c.RTMP.ProbeTimeout))
	}
	return errors.Join(errs...)
}

func isValidLogLevel(level string) bool {
	for _, l := range validLogLevels {
		if strings.EqualFold(level, l) {
			return true
		}
	}
	return false
}

// SlogLevel returns the configured level, info when unset.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Ownership returns the frame ownership mode.
func (c *Config) Ownership() FrameOwnership {
	if c.Refcount {
		return FrameOwnershipRefcounted
	}
	return FrameOwnershipShared
}

// PayloadMap returns the default payload map with configured overrides.
func (c *Config) PayloadMap() (PayloadMap, error) {
	m := DefaultPayloadMap()
	if err := m.applyPayloadTypes(c.RTP.PayloadTypes, c.RTP.ClockRates); err != nil {
		return nil, err
	}
	return m, nil
}

// ProviderFor returns the configured decoder provider for a stream.
func (c *Config) ProviderFor(desc StreamDescriptor) Provider {
	for codec, name := range c.Decoder.Providers {
		switch desc.MediaType {
		case MediaTypeVideo:
			if ParseVideoCodec(codec) == desc.VideoCodec {
				return ParseProvider(name)
			}
		case MediaTypeAudio:
			if ParseAudioCodec(codec) == desc.AudioCodec {
				return ParseProvider(name)
			}
		}
	}
	return ProviderAuto
}

// ContainerConfig returns the OpenContainer settings.
func (c *Config) ContainerConfig(logger *slog.Logger) (ContainerConfig, error) {
	cc := ContainerConfig{
		ProbePackets: c.ProbePackets,
		ProbeTimeout: c.RTMP.ProbeTimeout,
		Logger:       logger,
	}
	if c.Format != "" {
		f, err := ParseContainerFormat(c.Format)
		if err != nil {
			return cc, err
		}
		cc.Format = f
	}
	m, err := c.PayloadMap()
	if err != nil {
		return cc, err
	}
	cc.PayloadMap = m
	return cc, nil
}
