package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for vmplane.
type Config struct {
	Client    ClientConfig    `mapstructure:"client" yaml:"client"`
	Tasks     TasksConfig     `mapstructure:"tasks" yaml:"tasks"`
	Simulator SimulatorConfig `mapstructure:"simulator" yaml:"simulator"`
}

// ClientConfig configures how the CLI reaches the control plane.
type ClientConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	User     string `mapstructure:"user" yaml:"user"`
	Device   string `mapstructure:"device" yaml:"device"`
	AuthFile string `mapstructure:"auth_file" yaml:"auth_file"`
	// Identity is an age identity file used to seal AuthFile.
	Identity string `mapstructure:"identity" yaml:"identity"`
	TLSDir   string `mapstructure:"tls_dir" yaml:"tls_dir"`
	// RawMonitor skips the Hello/Welcome exchange on console channels.
	RawMonitor bool `mapstructure:"raw_monitor" yaml:"raw_monitor"`
}

// TasksConfig bounds task polling.
type TasksConfig struct {
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// SimulatorConfig configures the in-process control plane.
type SimulatorConfig struct {
	Listen       string        `mapstructure:"listen" yaml:"listen"`
	BasePath     string        `mapstructure:"base" yaml:"base"`
	UsersFile    string        `mapstructure:"users_file" yaml:"users_file"`
	AccessTTL    time.Duration `mapstructure:"access_ttl" yaml:"access_ttl"`
	RefreshTTL   time.Duration `mapstructure:"refresh_ttl" yaml:"refresh_ttl"`
	TaskPolls    int           `mapstructure:"task_polls" yaml:"task_polls"`
	PublishedURL string        `mapstructure:"published_url" yaml:"published_url"`
	TLS          TLSConfig     `mapstructure:"tls" yaml:"tls"`
}

// TLSConfig configures TLS for the simulator listener.
type TLSConfig struct {
	Mode     string   `mapstructure:"mode" yaml:"mode"`
	Bundle   []string `mapstructure:"bundle" yaml:"bundle"`
	Hosts    []string `mapstructure:"hosts" yaml:"hosts"`
	Dir      string   `mapstructure:"dir" yaml:"dir"`
	CacheDir string   `mapstructure:"cache_dir" yaml:"cache_dir"`
}

// Loader wraps Viper configuration loading.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader initializes a Loader with the standard search paths and the
// VMPLANE environment prefix.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/vmplane")
	v.AddConfigPath("$HOME/" + DefaultConfigDirName)

	return &Loader{v: v}
}

// Viper exposes the underlying Viper instance for flag binding and defaults.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = strings.TrimSpace(path)
}

// SetDefaults registers cfg as the fallback for every key.
func (l *Loader) SetDefaults(cfg Config) {
	c, t, s := cfg.Client, cfg.Tasks, cfg.Simulator
	for key, val := range map[string]any{
		"client.endpoint":         c.Endpoint,
		"client.user":             c.User,
		"client.device":           c.Device,
		"client.auth_file":        c.AuthFile,
		"client.identity":         c.Identity,
		"client.tls_dir":          c.TLSDir,
		"client.raw_monitor":      c.RawMonitor,
		"tasks.timeout":           t.Timeout,
		"tasks.interval":          t.Interval,
		"simulator.listen":        s.Listen,
		"simulator.base":          s.BasePath,
		"simulator.users_file":    s.UsersFile,
		"simulator.access_ttl":    s.AccessTTL,
		"simulator.refresh_ttl":   s.RefreshTTL,
		"simulator.task_polls":    s.TaskPolls,
		"simulator.published_url": s.PublishedURL,
		"simulator.tls.mode":      s.TLS.Mode,
		"simulator.tls.bundle":    s.TLS.Bundle,
		"simulator.tls.hosts":     s.TLS.Hosts,
		"simulator.tls.dir":       s.TLS.Dir,
		"simulator.tls.cache_dir": s.TLS.CacheDir,
	} {
		l.v.SetDefault(key, val)
	}
}

// ReadInConfig reads configuration from file if available.
func (l *Loader) ReadInConfig() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// Load reads configuration and unmarshals it into a Config struct.
func (l *Loader) Load() (Config, error) {
	if err := l.ReadInConfig(); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
