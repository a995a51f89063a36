package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/haivivi/pcmlink/pkg/audio/pcm"
	"github.com/haivivi/pcmlink/pkg/uplink"
)

const (
	// DefaultBaseDir is the base configuration directory name
	DefaultBaseDir = ".pcmlink"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.yaml"
	// DefaultSource is the capture source used when a context names none
	DefaultSource = "portaudio"
)

// Config represents the main configuration structure for a CLI app
type Config struct {
	// AppName is the application name
	AppName string `yaml:"-"`

	// CurrentContext is the name of the currently active context
	CurrentContext string `yaml:"current_context,omitempty"`

	// Contexts is a map of context name to context configuration
	Contexts map[string]*Context `yaml:"contexts,omitempty"`

	configPath string
}

// Context is one named receiver profile.
type Context struct {
	Name string `yaml:"name"`

	// Host and Port locate the receiver. Empty values fall back to
	// uplink.DefaultHost and uplink.DefaultPort.
	Host string `yaml:"host,omitempty"`
	Port uint16 `yaml:"port,omitempty"`

	// Gain is the last gain used with this context, 1.0 when unset.
	Gain *float32 `yaml:"gain,omitempty"`
	// Muted is the last mute state used with this context.
	Muted bool `yaml:"muted,omitempty"`

	// Source is the capture spec, such as "portaudio:2" or "tone:440".
	Source string `yaml:"source,omitempty"`

	// Monitor is the listen address of the HTTP monitor; empty disables it.
	Monitor string `yaml:"monitor,omitempty"`

	// History enables session history recording.
	History bool `yaml:"history,omitempty"`

	// Extra stores free-form settings
	Extra map[string]string `yaml:"extra,omitempty"`
}

// LoadConfig loads or creates configuration for the specified app
func LoadConfig(appName string) (*Config, error) {
	return LoadConfigWithPath(appName, "")
}

// LoadConfigIfExists loads configuration only if the file already exists.
// It returns nil when there is no config file or it cannot be read.
func LoadConfigIfExists(appName string) *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(home, DefaultBaseDir, appName, DefaultConfigFile)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	cfg, err := LoadConfigWithPath(appName, path)
	if err != nil {
		return nil
	}
	return cfg
}

// LoadConfigWithPath loads configuration from a custom path
func LoadConfigWithPath(appName, customPath string) (*Config, error) {
	configPath := customPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, DefaultBaseDir, appName, DefaultConfigFile)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := &Config{
		AppName:    appName,
		Contexts:   make(map[string]*Context),
		configPath: configPath,
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Save()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	for name, ctx := range cfg.Contexts {
		ctx.Name = name
	}
	cfg.AppName = appName
	cfg.configPath = configPath
	return cfg, nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(c.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Path returns the config file path
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the config directory path
func (c *Config) Dir() string {
	return filepath.Dir(c.configPath)
}

// AddContext adds or replaces a context. The first context added becomes
// the current one.
func (c *Config) AddContext(name string, ctx *Context) error {
	ctx.Name = name
	c.Contexts[name] = ctx
	if c.CurrentContext == "" {
		c.CurrentContext = name
	}
	return c.Save()
}

// DeleteContext removes a context
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext sets the current context
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns a specific context
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("context %q not found", name)
	}
	return ctx, nil
}

// GetCurrentContext returns the current context
func (c *Config) GetCurrentContext() (*Context, error) {
	if c.CurrentContext == "" {
		return nil, fmt.Errorf("no current context set")
	}
	return c.GetContext(c.CurrentContext)
}

// ResolveContext returns the context by name, or current context if name is empty
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name == "" {
		return c.GetCurrentContext()
	}
	return c.GetContext(name)
}

// ListContexts returns all context names in sorted order
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// StreamConfig returns the normalized uplink settings of the context.
func (ctx *Context) StreamConfig() uplink.StreamConfig {
	gain := float32(1)
	if ctx.Gain != nil {
		gain = *ctx.Gain
	}
	return uplink.StreamConfig{
		Host:         ctx.Host,
		Port:         ctx.Port,
		InitialGain:  gain,
		InitialMuted: ctx.Muted,
	}.Normalize()
}

// CaptureSource returns the capture spec, DefaultSource when unset.
func (ctx *Context) CaptureSource() string {
	if ctx.Source == "" {
		return DefaultSource
	}
	return ctx.Source
}

// SetGain stores a clamped gain.
func (ctx *Context) SetGain(v float32) {
	v = pcm.Clamp01(v)
	ctx.Gain = &v
}

// Keys accepted by Set.
var settableKeys = []string{"host", "port", "gain", "muted", "source", "monitor", "history"}

// Set assigns a setting by name. Unknown keys are stored in Extra when
// prefixed with "extra.".
func (ctx *Context) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "host":
		ctx.Host = value
	case "port":
		p, err := strconv.ParseUint(value, 10, 16)
		if err != nil || p == 0 {
			return fmt.Errorf("invalid port %q", value)
		}
		ctx.Port = uint16(p)
	case "gain":
		g, err := strconv.ParseFloat(value, 32)
		if err != nil || g < 0 || g > 1 {
			return fmt.Errorf("invalid gain %q: want a number in [0, 1]", value)
		}
		ctx.SetGain(float32(g))
	case "muted":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid muted %q", value)
		}
		ctx.Muted = b
	case "source":
		ctx.Source = value
	case "monitor":
		ctx.Monitor = value
	case "history":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid history %q", value)
		}
		ctx.History = b
	default:
		if k, ok := strings.CutPrefix(key, "extra."); ok && k != "" {
			ctx.SetExtra(k, value)
			return nil
		}
		return fmt.Errorf("unknown key %q (want one of %s or extra.<name>)", key, strings.Join(settableKeys, ", "))
	}
	return nil
}

// GetExtra returns an extra value for the context
func (ctx *Context) GetExtra(key string) string {
	if ctx.Extra == nil {
		return ""
	}
	return ctx.Extra[key]
}

// SetExtra sets an extra value for the context
func (ctx *Context) SetExtra(key, value string) {
	if ctx.Extra == nil {
		ctx.Extra = make(map[string]string)
	}
	ctx.Extra[key] = value
}
