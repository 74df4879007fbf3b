package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AtDexters-Lab/sim-protocol/internal/hostnames"
	"github.com/AtDexters-Lab/sim-protocol/internal/protocol"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// JWTSecretEnv overrides frontendsJWTSecret when set.
const JWTSecretEnv = "SIM_FRONTENDS_JWT_SECRET"

const (
	DefaultListenAddress          = ":8443"
	DefaultShutdownTimeoutSeconds = 10
	DefaultVerifierTimeoutSeconds = 5
	DefaultMaxFrameBytes          = 1 << 20
)

// LimitsConfig mirrors protocol.Limits. Zero fields take the protocol defaults.
type LimitsConfig struct {
	ScreenWidth  int `yaml:"screenWidth" toml:"screenWidth"`
	ScreenHeight int `yaml:"screenHeight" toml:"screenHeight"`
	AxisMin      int `yaml:"axisMin" toml:"axisMin"`
	AxisMax      int `yaml:"axisMax" toml:"axisMax"`
}

// Config holds the bridge configuration, loaded from a YAML or TOML file.
type Config struct {
	ListenAddress    string `yaml:"listenAddress" toml:"listenAddress"`
	TCPListenAddress string `yaml:"tcpListenAddress" toml:"tcpListenAddress"`

	FrontendsJWTSecret     string `yaml:"frontendsJWTSecret" toml:"frontendsJWTSecret"`
	RemoteVerifierURL      string `yaml:"remoteVerifierURL" toml:"remoteVerifierURL"`
	VerifierTimeoutSeconds int    `yaml:"verifierTimeoutSeconds" toml:"verifierTimeoutSeconds"`

	// Manual TLS configuration
	TLSCertFile string `yaml:"tlsCertFile" toml:"tlsCertFile"`
	TLSKeyFile  string `yaml:"tlsKeyFile" toml:"tlsKeyFile"`

	// Automatic TLS configuration via ACME
	PublicHostname string `yaml:"publicHostname" toml:"publicHostname"`
	AcmeCacheDir   string `yaml:"acmeCacheDir" toml:"acmeCacheDir"`

	// Insecure serves plain HTTP. Intended for local development only.
	Insecure bool `yaml:"insecure" toml:"insecure"`

	Limits                 LimitsConfig `yaml:"limits" toml:"limits"`
	MaxFrameBytes          int          `yaml:"maxFrameBytes" toml:"maxFrameBytes"`
	Extensions             []string     `yaml:"extensions" toml:"extensions"`
	SendHandshake          bool         `yaml:"sendHandshake" toml:"sendHandshake"`
	ShutdownTimeoutSeconds int          `yaml:"shutdownTimeoutSeconds" toml:"shutdownTimeoutSeconds"`
	LogLevel               string       `yaml:"logLevel" toml:"logLevel"`
}

// ShutdownTimeout returns the graceful shutdown budget as a time.Duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// VerifierTimeout returns the remote token verifier timeout.
func (c *Config) VerifierTimeout() time.Duration {
	return time.Duration(c.VerifierTimeoutSeconds) * time.Second
}

// ProtocolLimits returns the validation limits, falling back to the protocol
// defaults for unset fields.
func (c *Config) ProtocolLimits() protocol.Limits {
	l := protocol.DefaultLimits()
	if c.Limits.ScreenWidth > 0 {
		l.ScreenWidth = c.Limits.ScreenWidth
	}
	if c.Limits.ScreenHeight > 0 {
		l.ScreenHeight = c.Limits.ScreenHeight
	}
	if c.Limits.AxisMin != 0 || c.Limits.AxisMax != 0 {
		l.AxisMin = c.Limits.AxisMin
		l.AxisMax = c.Limits.AxisMax
	}
	return l
}

func (c *Config) applyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if c.ShutdownTimeoutSeconds == 0 {
		c.ShutdownTimeoutSeconds = DefaultShutdownTimeoutSeconds
	}
	if c.VerifierTimeoutSeconds == 0 {
		c.VerifierTimeoutSeconds = DefaultVerifierTimeoutSeconds
	}
	if c.MaxFrameBytes == 0 {
		c.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if secret := os.Getenv(JWTSecretEnv); secret != "" {
		c.FrontendsJWTSecret = secret
	}
}

// validate performs comprehensive validation of the loaded configuration.
func (c *Config) validate() error {
	if c.FrontendsJWTSecret == "" && c.RemoteVerifierURL == "" {
		return fmt.Errorf("frontendsJWTSecret or remoteVerifierURL must be set")
	}
	if c.ShutdownTimeoutSeconds < 0 {
		return fmt.Errorf("shutdownTimeoutSeconds cannot be negative")
	}
	if c.VerifierTimeoutSeconds < 0 {
		return fmt.Errorf("verifierTimeoutSeconds cannot be negative")
	}
	if c.MaxFrameBytes < 0 {
		return fmt.Errorf("maxFrameBytes cannot be negative")
	}

	l := c.ProtocolLimits()
	if l.AxisMin >= l.AxisMax {
		return fmt.Errorf("limits.axisMin (%d) must be below limits.axisMax (%d)", l.AxisMin, l.AxisMax)
	}

	// TLS must be exactly one of manual, automatic or explicitly disabled.
	manualTLS := c.TLSCertFile != "" || c.TLSKeyFile != ""
	automaticTLS := c.PublicHostname != ""

	if manualTLS && automaticTLS {
		return fmt.Errorf("cannot specify both manual TLS (tlsCertFile/tlsKeyFile) and automatic TLS (publicHostname) settings")
	}
	if c.Insecure && (manualTLS || automaticTLS) {
		return fmt.Errorf("insecure cannot be combined with TLS settings")
	}
	if !c.Insecure && !manualTLS && !automaticTLS {
		return fmt.Errorf("must specify either manual TLS (tlsCertFile/tlsKeyFile), automatic TLS (publicHostname) or insecure")
	}
	if manualTLS && (c.TLSCertFile == "" || c.TLSKeyFile == "") {
		return fmt.Errorf("both tlsCertFile and tlsKeyFile must be set for manual TLS")
	}
	if automaticTLS {
		name, err := hostnames.CertificateName(c.PublicHostname)
		if err != nil {
			return fmt.Errorf("publicHostname: %w", err)
		}
		c.PublicHostname = name
	}

	for _, ext := range c.Extensions {
		if strings.TrimSpace(ext) == "" {
			return fmt.Errorf("extensions cannot contain empty names")
		}
	}
	return nil
}

// LoadConfig reads the configuration from the given file path, unmarshals it
// as TOML for a .toml extension and YAML otherwise, and performs validation.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal toml from %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml from %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
