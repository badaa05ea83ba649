package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// TrackingPath declares an additional URL pattern group loaded from tracking.yml.
type TrackingPath struct {
	Type         string   `mapstructure:"type"`
	Patterns     []string `mapstructure:"patterns"`
	Methods      []string `mapstructure:"methods"`
	TrackingType string   `mapstructure:"tracking_type"`
	SubType      string   `mapstructure:"sub_type"`
	ObjectType   string   `mapstructure:"object_type"`
	// ObjectFrom is "path" (last segment, default) or "query:<name>".
	ObjectFrom string `mapstructure:"object_from"`
}

// HasHandler reports whether the entry carries enough data to build a handler.
func (p TrackingPath) HasHandler() bool {
	return strings.TrimSpace(p.TrackingType) != "" && strings.TrimSpace(p.SubType) != ""
}

type TrackingPathsConfig struct {
	Paths []TrackingPath `mapstructure:"paths"`
}

type TrackingPathsHolder struct {
	current atomic.Value // holds TrackingPathsConfig

	mu        sync.Mutex
	listeners []func(TrackingPathsConfig)
}

func NewTrackingPathsHolder(cfg Config, log *zap.Logger) (*TrackingPathsHolder, error) {
	v := viper.New()

	v.SetConfigName(cfg.Tracking.PathsFile)
	v.SetConfigType("yml")
	for _, dir := range cfg.Tracking.PathsDirs {
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix("USAGETRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &TrackingPathsHolder{}
	holder.current.Store(TrackingPathsConfig{})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return holder, nil
		}
		return nil, err
	}

	loaded, err := decodeTrackingPaths(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(loaded)

	log = log.Named("config.tracking_paths")
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeTrackingPaths(v)
		if err != nil {
			log.Warn("invalid tracking paths ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.Set(updated)
		log.Info("tracking paths reloaded", zap.String("file", e.Name), zap.Int("paths", len(updated.Paths)))
	})

	return holder, nil
}

func (h *TrackingPathsHolder) Get() TrackingPathsConfig {
	return h.current.Load().(TrackingPathsConfig)
}

// Set replaces the current configuration and notifies subscribers.
func (h *TrackingPathsHolder) Set(cfg TrackingPathsConfig) {
	h.current.Store(cfg)

	h.mu.Lock()
	listeners := append([]func(TrackingPathsConfig){}, h.listeners...)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

// Subscribe registers fn to be called after every reload.
func (h *TrackingPathsHolder) Subscribe(fn func(TrackingPathsConfig)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

func decodeTrackingPaths(v *viper.Viper) (TrackingPathsConfig, error) {
	var cfg TrackingPathsConfig
	if err := v.UnmarshalKey("tracking", &cfg); err != nil {
		return TrackingPathsConfig{}, err
	}
	if err := ValidateTrackingPaths(cfg); err != nil {
		return TrackingPathsConfig{}, err
	}
	return cfg, nil
}

func ValidateTrackingPaths(cfg TrackingPathsConfig) error {
	for i, path := range cfg.Paths {
		if strings.TrimSpace(path.Type) == "" {
			return fmt.Errorf("tracking.paths[%d].type cannot be empty", i)
		}
		if len(path.Patterns) == 0 {
			return fmt.Errorf("tracking.paths[%d].patterns cannot be empty", i)
		}
		for _, pattern := range path.Patterns {
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("tracking.paths[%d]: %w", i, err)
			}
		}
		if strings.TrimSpace(path.SubType) != "" && strings.TrimSpace(path.TrackingType) == "" {
			return fmt.Errorf("tracking.paths[%d].tracking_type is required with sub_type", i)
		}
		from := strings.TrimSpace(path.ObjectFrom)
		if from != "" && from != "path" && !strings.HasPrefix(from, "query:") {
			return fmt.Errorf("tracking.paths[%d].object_from %q is not supported", i, from)
		}
	}
	return nil
}
