package app

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/livefeed/internal/server"
	"github.com/agentstation/livefeed/internal/server/handlers"
)

// EnvPrefix prefixes every environment variable the CLI reads.
const EnvPrefix = "LIVEFEED"

// DefaultServerURL is where publish and watch connect when no server URL
// is configured.
const DefaultServerURL = "http://localhost:8080/api/v1"

// Config holds the application configuration loaded from config files,
// environment variables and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// ServerURL is the API root used by publish, watch and connections.
	ServerURL string

	// Server holds serve settings. Flags given to serve override them.
	Server server.Config

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (applied later by the commands)
// 2. Environment variables (LIVEFEED_PORT, LIVEFEED_MODE, ...)
// 3. .env files
// 4. Config file (configFile, or ~/.livefeed.yaml)
// 5. Defaults
func LoadConfig(configFile string) (*Config, error) {
	// Load .env files first so their values are visible to viper
	loadEnvFiles()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".livefeed")

		// A missing default config file is not an error
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	config := &Config{
		Verbose: v.GetBool("verbose"),
		Quiet:   v.GetBool("quiet"),
		NoColor: v.GetBool("no_color"),
		Format:  v.GetString("format"),

		ConfigFile: v.ConfigFileUsed(),
		ServerURL:  v.GetString("server_url"),

		Server: server.Config{
			Host:              v.GetString("host"),
			Port:              v.GetInt("port"),
			PathPrefix:        v.GetString("path_prefix"),
			Mode:              handlers.Mode(v.GetString("mode")),
			UpstreamURL:       v.GetString("upstream_url"),
			HeartbeatInterval: v.GetDuration("heartbeat_interval"),
			CORSOrigins:       splitList(v.GetStringSlice("cors_origins")),
			RateLimit:         v.GetInt("rate_limit"),
			DedupeTTL:         v.GetDuration("dedupe_ttl"),
			ReadTimeout:       v.GetDuration("read_timeout"),
			WriteTimeout:      v.GetDuration("write_timeout"),
			IdleTimeout:       v.GetDuration("idle_timeout"),
		},

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
		LogOutput: v.GetString("log_output"),
	}
	config.Server.CORSEnabled = v.GetBool("cors") || len(config.Server.CORSOrigins) > 0

	return config, nil
}

// setDefaults registers a default for every key so AutomaticEnv can
// resolve it and config files only need to name what they change.
func setDefaults(v *viper.Viper) {
	d := server.DefaultConfig()

	v.SetDefault("format", "")
	v.SetDefault("server_url", DefaultServerURL)

	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("path_prefix", d.PathPrefix)
	v.SetDefault("mode", string(d.Mode))
	v.SetDefault("upstream_url", d.UpstreamURL)
	v.SetDefault("heartbeat_interval", d.HeartbeatInterval)
	v.SetDefault("cors", d.CORSEnabled)
	v.SetDefault("cors_origins", d.CORSOrigins)
	v.SetDefault("rate_limit", d.RateLimit)
	v.SetDefault("dedupe_ttl", d.DedupeTTL)
	v.SetDefault("read_timeout", d.ReadTimeout)
	v.SetDefault("write_timeout", d.WriteTimeout)
	v.SetDefault("idle_timeout", d.IdleTimeout)

	v.SetDefault("log_level", "")
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = c.Verbose || verbose
	c.Quiet = c.Quiet || quiet
	c.NoColor = c.NoColor || noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files.
// Variables already set in the environment are not overridden.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// splitList accepts both YAML lists and comma-separated environment values.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

