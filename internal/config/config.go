package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/parcel/internal/utils"
	"gopkg.in/yaml.v3"
)

const (
	MinChunkSize = 1024
	MaxChunkSize = 10 * 1024 * 1024
	MinTimeout   = 5 * time.Second
	MaxTimeout   = 300 * time.Second
	EnvPrefix    = "PARCEL_"
)

type S3Config struct {
	Profile   string `yaml:"profile"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// Config holds everything a run needs. Precedence, lowest first: built-in
// defaults, the YAML file, PARCEL_* environment variables, explicit flags.
type Config struct {
	Root             string            `yaml:"root"`
	Segments         int               `yaml:"segments"`
	Workers          int               `yaml:"workers"`
	ChunkSize        int               `yaml:"chunk_size"`
	Threshold        int64             `yaml:"threshold"`
	Timeout          time.Duration     `yaml:"timeout"`
	ProbeTimeout     time.Duration     `yaml:"probe_timeout"`
	KeepAliveTimeout time.Duration     `yaml:"keep_alive_timeout"`
	UserAgent        string            `yaml:"user_agent"`
	Proxy            string            `yaml:"proxy"`
	ProxyUsername    string            `yaml:"proxy_username"`
	ProxyPassword    string            `yaml:"proxy_password"`
	BearerToken      string            `yaml:"bearer_token"`
	Headers          map[string]string `yaml:"headers"`
	S3               S3Config          `yaml:"s3"`
}

func Default() Config {
	return Config{
		Root:             ".",
		Segments:         utils.DefaultSegments,
		Workers:          utils.DefaultWorkers,
		ChunkSize:        utils.DefaultChunkSize,
		Threshold:        utils.DefaultThreshold,
		Timeout:          utils.DefaultTransferTimeout,
		ProbeTimeout:     utils.DefaultProbeTimeout,
		KeepAliveTimeout: utils.DefaultKATimeout,
		UserAgent:        utils.ToolUserAgent,
	}
}

// Load builds the configuration from path (optional) and the environment.
// envFile seeds the environment without replacing variables already set; a
// missing envFile is not an error.
func Load(path, envFile string) (Config, error) {
	cfg := Default()
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("%w: loading %s: %v", utils.ErrInvalidInput, envFile, err)
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("%w: reading config file: %v", utils.ErrInvalidInput, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: parsing config file %s: %v", utils.ErrInvalidInput, path, err)
		}
		log.Debug().Str("op", "config/load").Str("path", path).Msg("Loaded config file")
	}
	cfg.applyEnv()
	cfg.Clamp()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Root = getEnv("ROOT", c.Root)
	c.Segments = getInt("SEGMENTS", c.Segments)
	c.Workers = getInt("WORKERS", c.Workers)
	c.ChunkSize = getInt("CHUNK_SIZE", c.ChunkSize)
	c.Threshold = int64(getInt("THRESHOLD", int(c.Threshold)))
	c.Timeout = getDuration("TIMEOUT", c.Timeout)
	c.ProbeTimeout = getDuration("PROBE_TIMEOUT", c.ProbeTimeout)
	c.KeepAliveTimeout = getDuration("KEEP_ALIVE_TIMEOUT", c.KeepAliveTimeout)
	c.UserAgent = getEnv("USER_AGENT", c.UserAgent)
	c.Proxy = getEnv("PROXY", c.Proxy)
	c.ProxyUsername = getEnv("PROXY_USERNAME", c.ProxyUsername)
	c.ProxyPassword = getEnv("PROXY_PASSWORD", c.ProxyPassword)
	c.BearerToken = getEnv("BEARER_TOKEN", c.BearerToken)
	c.S3.Profile = getEnv("S3_PROFILE", c.S3.Profile)
	c.S3.Region = getEnv("S3_REGION", c.S3.Region)
	c.S3.Endpoint = getEnv("S3_ENDPOINT", c.S3.Endpoint)
	c.S3.PathStyle = getBool("S3_PATH_STYLE", c.S3.PathStyle)
}

// Clamp forces every numeric setting into its supported range.
func (c *Config) Clamp() {
	c.Segments = utils.ClampSegments(c.Segments)
	c.Workers = utils.ClampWorkers(c.Workers)
	c.ChunkSize = min(max(c.ChunkSize, MinChunkSize), MaxChunkSize)
	if c.Threshold <= 0 {
		c.Threshold = utils.DefaultThreshold
	}
	c.Timeout = clampTimeout(c.Timeout)
	c.ProbeTimeout = clampTimeout(c.ProbeTimeout)
	c.KeepAliveTimeout = clampTimeout(c.KeepAliveTimeout)
	if c.Root == "" {
		c.Root = "."
	}
}

func clampTimeout(d time.Duration) time.Duration {
	return min(max(d, MinTimeout), MaxTimeout)
}

func (c Config) HTTPClientConfig() utils.HTTPClientConfig {
	return utils.HTTPClientConfig{
		ProbeTimeout:    c.ProbeTimeout,
		TransferTimeout: c.Timeout,
		KATimeout:       c.KeepAliveTimeout,
		ProxyURL:        c.Proxy,
		ProxyUsername:   c.ProxyUsername,
		ProxyPassword:   c.ProxyPassword,
		UserAgent:       c.UserAgent,
		Headers:         c.Headers,
		BearerToken:     c.BearerToken,
		HighThreadMode:  c.Segments > 8,
	}
}
