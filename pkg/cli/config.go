package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
)

const (
	// DefaultBaseDir is the base configuration directory name.
	DefaultBaseDir = ".giztoy"
	// AppName is the directory under DefaultBaseDir used by voysis.
	AppName = "voysis"
	// DefaultConfigFile is the configuration filename.
	DefaultConfigFile = "config.yaml"
)

// ErrNoContext is returned when no context is named and none is current.
var ErrNoContext = errors.New("no current context set")

// Config holds the named contexts of the voysis CLI, kubectl style.
type Config struct {
	CurrentContext string              `yaml:"current_context,omitempty"`
	Contexts       map[string]*Context `yaml:"contexts,omitempty"`

	path string
}

// Context is one Voysis service configuration.
type Context struct {
	Name string `yaml:"name"`

	// Host is the service host, e.g. "mycompany.voysis.io".
	Host string `yaml:"host,omitempty"`

	// WebSocketURL overrides the URL derived from Host.
	WebSocketURL string `yaml:"ws_url,omitempty"`

	// AudioProfileID identifies this client installation. Generated when
	// the context is created without one.
	AudioProfileID string `yaml:"audio_profile_id"`

	// RefreshToken is exchanged for session tokens.
	RefreshToken string `yaml:"refresh_token,omitempty"`

	UserID string `yaml:"user_id,omitempty"`
	Email  string `yaml:"email,omitempty"`

	// Locale is the default query locale.
	Locale string `yaml:"locale,omitempty"`

	// StreamingDeadline bounds audio streams, e.g. "20s".
	StreamingDeadline string `yaml:"streaming_deadline,omitempty"`

	// IgnoreVAD disables server end-of-speech detection.
	IgnoreVAD bool `yaml:"ignore_vad,omitempty"`
}

// DefaultConfigPath returns ~/.giztoy/voysis/config.yaml.
func DefaultConfigPath() (string, error) {
	p, err := NewPaths(AppName)
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return p.ConfigFile(), nil
}

// LoadConfig loads the configuration at path, or the default location if
// path is empty. A missing file yields an empty configuration that is
// written on the first Save.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{Contexts: make(map[string]*Context), path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	for name, c := range cfg.Contexts {
		c.Name = name
	}
	return cfg, nil
}

// Save writes the configuration with owner-only permissions, since it
// holds refresh tokens.
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string { return c.path }

// Dir returns the directory holding the config file.
func (c *Config) Dir() string { return filepath.Dir(c.path) }

// AddContext stores ctx under name, generating an audio profile id if it
// has none. The first context added becomes current.
func (c *Config) AddContext(name string, ctx *Context) error {
	if name == "" {
		return errors.New("context name is required")
	}
	if ctx.Host == "" && ctx.WebSocketURL == "" {
		return fmt.Errorf("context %q: host or ws_url is required", name)
	}
	if ctx.StreamingDeadline != "" {
		if _, err := time.ParseDuration(ctx.StreamingDeadline); err != nil {
			return fmt.Errorf("context %q: invalid streaming_deadline: %w", name, err)
		}
	}
	ctx.Name = name
	if ctx.AudioProfileID == "" {
		ctx.AudioProfileID = uuid.NewString()
	}
	c.Contexts[name] = ctx
	if c.CurrentContext == "" {
		c.CurrentContext = name
	}
	return c.Save()
}

// DeleteContext removes a context.
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

// UseContext sets the current context.
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns a context by name.
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("context %q not found", name)
	}
	return ctx, nil
}

// ResolveContext returns the named context, or the current one if name is
// empty.
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name == "" {
		if c.CurrentContext == "" {
			return nil, ErrNoContext
		}
		name = c.CurrentContext
	}
	return c.GetContext(name)
}

// ListContexts returns the context names, sorted.
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Deadline parses StreamingDeadline. Zero means unset.
func (ctx *Context) Deadline() time.Duration {
	d, _ := time.ParseDuration(ctx.StreamingDeadline)
	return d
}

// Masked returns a copy safe for display.
func (ctx *Context) Masked() *Context {
	m := *ctx
	m.RefreshToken = MaskSecret(ctx.RefreshToken)
	return &m
}

// MaskSecret masks all but the ends of a token for display.
func MaskSecret(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
