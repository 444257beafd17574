package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/example/feed-platform/services/comments/internal/gqlclient"
)

// cliConfig is resolved from COMMENTS_* env vars, then the --config file,
// then flags.
type cliConfig struct {
	GraphQLURL    string  `yaml:"graphql_url"`
	Token         string  `yaml:"token"`
	JWTSecret     string  `yaml:"jwt_secret"`
	PageSize      int     `yaml:"page_size"`
	ReplyPageSize int     `yaml:"reply_page_size"`
	RPS           float64 `yaml:"rps"`
	Burst         int     `yaml:"burst"`
	NATSURL       string  `yaml:"nats_url"`
	Publish       bool    `yaml:"publish"`
	LogLevel      string  `yaml:"log_level"`
}

func defaultConfig() cliConfig {
	return cliConfig{
		GraphQLURL:    "http://localhost:8080/graphql",
		PageSize:      gqlclient.DefaultPageSize,
		ReplyPageSize: gqlclient.DefaultPageSize,
		Burst:         1,
		LogLevel:      "warn",
	}
}

// loadConfig applies env then the optional YAML file at path on top of the
// defaults. A missing file named explicitly is an error.
func loadConfig(path string, getenv func(string) string) (cliConfig, error) {
	cfg := defaultConfig()
	if err := cfg.applyEnv(getenv); err != nil {
		return cliConfig{}, err
	}
	if strings.TrimSpace(path) == "" {
		return cfg, cfg.validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cliConfig{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c *cliConfig) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("COMMENTS_GRAPHQL_URL", &c.GraphQLURL)
	str("COMMENTS_TOKEN", &c.Token)
	str("JWT_SECRET", &c.JWTSecret)
	str("NATS_URL", &c.NATSURL)
	str("LOG_LEVEL", &c.LogLevel)

	for key, dst := range map[string]*int{
		"COMMENTS_PAGE_SIZE":       &c.PageSize,
		"COMMENTS_REPLY_PAGE_SIZE": &c.ReplyPageSize,
	} {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}
	if v := strings.TrimSpace(getenv("COMMENTS_RPS")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("COMMENTS_RPS: %w", err)
		}
		c.RPS = f
	}
	if v := strings.TrimSpace(getenv("COMMENTS_PUBLISH")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("COMMENTS_PUBLISH: %w", err)
		}
		c.Publish = b
	}
	return nil
}

func (c cliConfig) validate() error {
	switch {
	case strings.TrimSpace(c.GraphQLURL) == "":
		return errors.New("graphql_url is required")
	case c.PageSize < 1 || c.ReplyPageSize < 1:
		return errors.New("page sizes must be positive")
	case c.RPS < 0:
		return errors.New("rps must not be negative")
	}
	return nil
}
