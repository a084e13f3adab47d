// Package config loads Carbon's process configuration the way the
// retrieval pack's configloader does: struct defaults layered under
// environment variables under command-line flags, via koanf (§6 of the
// design spec enumerates the CARBON_* environment variables; flags mirror
// them for local runs).
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// HTTPConfig groups the HTTP front end's settings.
type HTTPConfig struct {
	Port int `koanf:"port"`
}

// TCPConfig groups the binary TCP front end's settings.
type TCPConfig struct {
	Port int `koanf:"port"`
}

// AdminConfig groups the single bootstrap admin principal (§9: multi-tenant
// ACLs are deliberately deferred).
type AdminConfig struct {
	User     string `koanf:"user"`
	Password string `koanf:"password"`
}

// ServerConfig groups process-wide secrets.
type ServerConfig struct {
	Secret string `koanf:"secret"`
}

// OverflowConfig groups disk-overflow settings shared by every namespace
// that enables it (§4.3).
type OverflowConfig struct {
	Dir string `koanf:"dir"`
}

// SessionConfig groups AuthCache session lifetimes (§4.6).
type SessionConfig struct {
	IdleTTLMillis     int64 `koanf:"idle.ttl.ms"`
	AbsoluteTTLMillis int64 `koanf:"abs.ttl.ms"`
}

// Config is Carbon's full process configuration, assembled by Load.
type Config struct {
	HTTP            HTTPConfig     `koanf:"http"`
	TCP             TCPConfig      `koanf:"tcp"`
	Admin           AdminConfig    `koanf:"admin"`
	Server          ServerConfig   `koanf:"server"`
	Overflow        OverflowConfig `koanf:"overflow"`
	Session         SessionConfig  `koanf:"session"`
	AllowedOrigins  []string       `koanf:"allowed.origins"`
	AdminUIPath     string         `koanf:"admin.ui.path"`
	DrainTimeout    time.Duration  `koanf:"drain.timeout"`
	RequestDeadline time.Duration  `koanf:"request.deadline"`
	SweepInterval   time.Duration  `koanf:"sweep.interval"`
}

// Defaults returns Config populated with the spec's §6 defaults.
func Defaults() Config {
	return Config{
		HTTP:            HTTPConfig{Port: 8080},
		TCP:             TCPConfig{Port: 5500},
		Admin:           AdminConfig{User: "admin", Password: "admin123"},
		Overflow:        OverflowConfig{Dir: "./carbon-overflow"},
		Session:         SessionConfig{IdleTTLMillis: int64(30 * time.Minute / time.Millisecond), AbsoluteTTLMillis: int64(24 * time.Hour / time.Millisecond)},
		AllowedOrigins:  []string{"*"},
		AdminUIPath:     "/admin/ui/",
		DrainTimeout:    10 * time.Second,
		RequestDeadline: 30 * time.Second,
		SweepInterval:   time.Second,
	}
}

// EnvPrefix is the environment-variable namespace every Carbon setting
// lives under (§6: CARBON_HTTP_PORT, CARBON_TCP_PORT, ...).
const EnvPrefix = "CARBON_"

// Load assembles Config from, in increasing priority: built-in defaults,
// an optional YAML file, CARBON_*-prefixed environment variables, and
// command-line flags.
func Load(configFile string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return Config{}, err
	}

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return Config{}, err
		}
	}

	envTransform := func(s string) string {
		trimmed := strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(trimmed), "_", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return Config{}, err
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Flags registers Carbon's command-line flags on fs, mirroring the
// environment variables in §6 so a local run needs neither.
func Flags(fs *pflag.FlagSet) {
	fs.Int("http.port", 8080, "HTTP API port")
	fs.Int("tcp.port", 5500, "binary TCP port")
	fs.String("admin.user", "admin", "bootstrap admin username")
	fs.String("admin.password", "", "bootstrap admin password")
	fs.String("server.secret", "", "HMAC secret for session credential fingerprints")
	fs.String("overflow.dir", "./carbon-overflow", "base directory for per-cache disk overflow")
	fs.StringSlice("allowed.origins", []string{"*"}, "CORS allowed origins")
	fs.Duration("drain.timeout", 10*time.Second, "graceful shutdown drain window")
	fs.Duration("request.deadline", 30*time.Second, "per-request deadline")
	fs.Duration("sweep.interval", time.Second, "background TTL sweep cadence for every cache")
	fs.String("config", "", "path to an optional YAML config file")
}
