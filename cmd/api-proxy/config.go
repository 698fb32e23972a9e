package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/resilient-api-client/pkg/client"
	"github.com/Sternrassler/resilient-api-client/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. APIPROXY_BASE_URL.
const EnvPrefix = "APIPROXY"

// proxyConfig is the runtime configuration of the proxy.
type proxyConfig struct {
	Addr        string
	BaseURL     string
	APIKey      string
	UserAgent   string
	RedisAddr   string
	RateLimit   float64
	Timeout     time.Duration
	MaxRetries  int
	PageSize    int
	Concurrency int
	LogLevel    logging.LogLevel
	Pretty      bool
}

// newViper returns a viper instance reading APIPROXY_* variables, with
// dashes in flag names mapped to underscores.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func bindServeFlags(cmd *cobra.Command, v *viper.Viper) {
	defaults := client.DefaultConfig("", "")

	flags := cmd.Flags()
	flags.String("addr", ":8080", "Listen address")
	flags.String("base-url", "", "Base URL of the remote API (required)")
	flags.String("api-key", "", "API key sent as Bearer token (required)")
	flags.String("user-agent", defaults.UserAgent, "User-Agent header")
	flags.String("redis-addr", "", "Redis address for response cache and shared quota (optional)")
	flags.Float64("rate-limit", defaults.RateLimit, "Client-side requests per second (0 = unlimited)")
	flags.Duration("timeout", defaults.Timeout, "Per-request timeout")
	flags.Int("max-retries", defaults.Retry.MaxRetries, "Retries after the first attempt")
	flags.Int("page-size", defaults.PageSize, "Default page size for listings")
	flags.Int("concurrency", defaults.BatchConcurrency, "Concurrent requests for batches and parallel listings")

	flags.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})
}

func bindGlobalFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.PersistentFlags()
	flags.String("log-level", "info", "Logging level (debug, info, warn, error)")
	flags.Bool("log-pretty", false, "Human-readable console logs")

	_ = v.BindPFlag("log-level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log-pretty", flags.Lookup("log-pretty"))
}

func loadConfig(v *viper.Viper) (proxyConfig, error) {
	level, err := logging.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return proxyConfig{}, err
	}

	cfg := proxyConfig{
		Addr:        v.GetString("addr"),
		BaseURL:     v.GetString("base-url"),
		APIKey:      v.GetString("api-key"),
		UserAgent:   v.GetString("user-agent"),
		RedisAddr:   v.GetString("redis-addr"),
		RateLimit:   v.GetFloat64("rate-limit"),
		Timeout:     v.GetDuration("timeout"),
		MaxRetries:  v.GetInt("max-retries"),
		PageSize:    v.GetInt("page-size"),
		Concurrency: v.GetInt("concurrency"),
		LogLevel:    level,
		Pretty:      v.GetBool("log-pretty"),
	}

	if cfg.BaseURL == "" {
		return proxyConfig{}, fmt.Errorf("required setting %q not set (flag --base-url or %s_BASE_URL)", "base-url", EnvPrefix)
	}
	if cfg.APIKey == "" {
		return proxyConfig{}, fmt.Errorf("required setting %q not set (flag --api-key or %s_API_KEY)", "api-key", EnvPrefix)
	}
	return cfg, nil
}

// clientConfig builds the client configuration. redisClient may be nil.
func (pc proxyConfig) clientConfig(redisClient *redis.Client) client.Config {
	cfg := client.DefaultConfig(pc.BaseURL, pc.APIKey)
	cfg.UserAgent = pc.UserAgent
	cfg.Redis = redisClient
	cfg.RateLimit = pc.RateLimit
	cfg.Burst = max(int(pc.RateLimit), 1)
	cfg.Timeout = pc.Timeout
	cfg.Retry.MaxRetries = pc.MaxRetries
	cfg.PageSize = pc.PageSize
	cfg.BatchConcurrency = pc.Concurrency
	return cfg
}
