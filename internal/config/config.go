package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. SIMFLEET_INSTANCES_MAX_INSTANCES.
const EnvPrefix = "SIMFLEET"

// Presentation modes select the display target handed to the simulator.
const (
	PresentationHeadless = "headless"
	PresentationDesktop  = "desktop"
)

// Config represents the complete simfleet configuration.
// It is loaded once at startup and passed by pointer; nothing mutates it afterwards.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Instances InstancesConfig `mapstructure:"instances"`
}

// ServerConfig controls the HTTP API listener
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// CORSOrigins is a comma separated allow list, "*" allows everything
	CORSOrigins string `mapstructure:"cors_origins"`
	// ProxyHost is where instance HTTP ports are reachable from this process
	ProxyHost string `mapstructure:"proxy_host"`
}

// LoggingConfig controls zerolog output
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// EngineConfig controls how the container engine is reached
type EngineConfig struct {
	// Mode is one of auto, sdk, cli, memory, unavailable
	Mode string `mapstructure:"mode"`
	// Socket is the explicit daemon address tried after the environment default
	Socket string `mapstructure:"socket"`
	// CLIPath is the command line tool used by the fallback mode
	CLIPath         string        `mapstructure:"cli_path"`
	CommandTimeout  time.Duration `mapstructure:"command_timeout"`
	StopTimeout     time.Duration `mapstructure:"stop_timeout"`
	PullTimeout     time.Duration `mapstructure:"pull_timeout"`
	ContainerPrefix string        `mapstructure:"container_prefix"`
}

// PortBases holds the first port of each role; instance N uses base+N
type PortBases struct {
	HTTP          int `mapstructure:"http"`
	Streaming     int `mapstructure:"streaming"`
	Native        int `mapstructure:"native"`
	RemoteDesktop int `mapstructure:"remote_desktop"`
}

// InstancesConfig describes the simulator pool and how each container is launched
type InstancesConfig struct {
	MaxInstances int       `mapstructure:"max_instances"`
	Image        string    `mapstructure:"image"`
	NetworkMode  string    `mapstructure:"network_mode"`
	Ports        PortBases `mapstructure:"ports"`
	MemoryLimit  string    `mapstructure:"memory_limit"`
	ShmSize      string    `mapstructure:"shm_size"`
	GPUEnabled   bool      `mapstructure:"gpu_enabled"`
	// GPURuntime is the engine runtime used when GPUs are requested
	GPURuntime       string `mapstructure:"gpu_runtime"`
	StreamingEnabled bool   `mapstructure:"streaming_enabled"`
	// Presentation is headless or desktop; it picks the default display
	Presentation string `mapstructure:"presentation"`
	// Display overrides the display derived from Presentation
	Display string `mapstructure:"display"`
	// User is uid:gid the container runs as and the cache directories are owned by
	User string `mapstructure:"user"`
	// CacheRoot holds per-instance cache directories, defaults to $HOME/docker
	CacheRoot    string `mapstructure:"cache_root"`
	ChownVolumes bool   `mapstructure:"chown_volumes"`
	// HeadlessCommand is used when streaming is enabled. Placeholders:
	// {http_port} {streaming_port} {native_port} {remote_desktop_port}
	HeadlessCommand []string `mapstructure:"headless_command"`
	// DesktopCommand is used when streaming is disabled; ports come from the image
	DesktopCommand []string `mapstructure:"desktop_command"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			CORSOrigins: "*",
			ProxyHost:   "127.0.0.1",
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
		Engine: EngineConfig{
			Mode:            "auto",
			Socket:          "unix:///var/run/docker.sock",
			CLIPath:         "docker",
			CommandTimeout:  30 * time.Second,
			StopTimeout:     10 * time.Second,
			PullTimeout:     30 * time.Minute,
			ContainerPrefix: "isaac-sim-instance",
		},
		Instances: InstancesConfig{
			MaxInstances: 4,
			Image:        "nvcr.io/nvidia/isaac-sim:5.1.0",
			NetworkMode:  "host",
			Ports: PortBases{
				HTTP:          8211,
				Streaming:     8011,
				Native:        8899,
				RemoteDesktop: 6080,
			},
			MemoryLimit:      "8g",
			ShmSize:          "2g",
			GPUEnabled:       true,
			GPURuntime:       "nvidia",
			StreamingEnabled: true,
			Presentation:     PresentationHeadless,
			User:             "1234:1234",
			ChownVolumes:     true,
			HeadlessCommand: []string{
				"./runheadless.sh",
				"-v",
				"--enable-webrtc-streaming",
				"--/exts/omni.services.transport.server.http/port={http_port}",
				"--/exts/omni.kit.streamsdk.plugins/rtcServerPort={streaming_port}",
			},
			DesktopCommand: []string{
				"/opt/remote-desktop/bootstrap.sh",
				"./isaac-sim.sh",
			},
		},
	}
}

// SetDefaults registers every default with v so env and file overrides can layer on top
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.proxy_host", d.Server.ProxyHost)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.json", d.Logging.JSON)

	v.SetDefault("engine.mode", d.Engine.Mode)
	v.SetDefault("engine.socket", d.Engine.Socket)
	v.SetDefault("engine.cli_path", d.Engine.CLIPath)
	v.SetDefault("engine.command_timeout", d.Engine.CommandTimeout)
	v.SetDefault("engine.stop_timeout", d.Engine.StopTimeout)
	v.SetDefault("engine.pull_timeout", d.Engine.PullTimeout)
	v.SetDefault("engine.container_prefix", d.Engine.ContainerPrefix)

	v.SetDefault("instances.max_instances", d.Instances.MaxInstances)
	v.SetDefault("instances.image", d.Instances.Image)
	v.SetDefault("instances.network_mode", d.Instances.NetworkMode)
	v.SetDefault("instances.ports.http", d.Instances.Ports.HTTP)
	v.SetDefault("instances.ports.streaming", d.Instances.Ports.Streaming)
	v.SetDefault("instances.ports.native", d.Instances.Ports.Native)
	v.SetDefault("instances.ports.remote_desktop", d.Instances.Ports.RemoteDesktop)
	v.SetDefault("instances.memory_limit", d.Instances.MemoryLimit)
	v.SetDefault("instances.shm_size", d.Instances.ShmSize)
	v.SetDefault("instances.gpu_enabled", d.Instances.GPUEnabled)
	v.SetDefault("instances.gpu_runtime", d.Instances.GPURuntime)
	v.SetDefault("instances.streaming_enabled", d.Instances.StreamingEnabled)
	v.SetDefault("instances.presentation", d.Instances.Presentation)
	v.SetDefault("instances.display", d.Instances.Display)
	v.SetDefault("instances.user", d.Instances.User)
	v.SetDefault("instances.cache_root", d.Instances.CacheRoot)
	v.SetDefault("instances.chown_volumes", d.Instances.ChownVolumes)
	v.SetDefault("instances.headless_command", d.Instances.HeadlessCommand)
	v.SetDefault("instances.desktop_command", d.Instances.DesktopCommand)
}

// BindEnv makes every key overridable through SIMFLEET_* variables
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "simfleet")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".simfleet"
	}
	return filepath.Join(home, ".config", "simfleet")
}

// ResolveCacheRoot returns CacheRoot or $HOME/docker when unset
func (c *InstancesConfig) ResolveCacheRoot() (string, error) {
	if c.CacheRoot != "" {
		return c.CacheRoot, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "docker"), nil
}

// ResolveDisplay returns the display target for the configured presentation mode
func (c *InstancesConfig) ResolveDisplay() string {
	if c.Display != "" {
		return c.Display
	}
	if c.Presentation == PresentationDesktop {
		return ":1"
	}
	return ":0"
}
