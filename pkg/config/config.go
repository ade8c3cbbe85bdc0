package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port          int    `yaml:"port"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	Timezone      string `yaml:"timezone"`
	LogLevel      string `yaml:"logLevel"`
	LogFormat     string `yaml:"logFormat"`
	Env           string `yaml:"env"`

	// InboundURL is the public base URL providers push notifications to; it
	// becomes the ConsumerAddress of every outbound subscription request.
	InboundURL string `yaml:"inboundUrl"`

	SubscriptionsFile string `yaml:"subscriptionsFile"`

	TriggerIntervalSeconds  int `yaml:"triggerIntervalSeconds"`
	HealthCheckFactor       int `yaml:"healthCheckFactor"`
	LeaderLeaseSeconds      int `yaml:"leaderLeaseSeconds"`
	AllowedClockSkewSeconds int `yaml:"allowedClockSkewSeconds"`

	NodeID string `yaml:"nodeId"`

	AdminJwksURL     string `yaml:"adminJwksUrl"`
	AdminIssuer      string `yaml:"adminIssuer"`
	AdminAudience    string `yaml:"adminAudience"`
	AdminStaticToken string `yaml:"adminStaticToken"`

	// InboundRateLimit throttles pushed messages per subscription. Disabled
	// unless both fields are positive.
	InboundRateLimit RateLimitBucketConfig `yaml:"inboundRateLimit"`
}

type RateLimitBucketConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return finish(&c)
}

// LoadConfigOptional behaves like LoadConfig but tolerates a missing or empty
// path: env overrides and defaults still apply, so a container can run on
// environment alone.
func LoadConfigOptional(filePath string) (*Config, error) {
	p := strings.TrimSpace(filePath)
	if p == "" {
		return finish(&Config{})
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return finish(&Config{})
	}
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return finish(&c)
}

func finish(c *Config) (*Config, error) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("INBOUND_URL"); v != "" {
		c.InboundURL = v
	}
	if v := os.Getenv("SUBSCRIPTIONS_FILE"); v != "" {
		c.SubscriptionsFile = v
	}
	if v := os.Getenv("TRIGGER_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TriggerIntervalSeconds = n
		}
	}
	if v := os.Getenv("HEALTHCHECK_INTERVAL_FACTOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HealthCheckFactor = n
		}
	}
	if v := os.Getenv("LEADER_LEASE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LeaderLeaseSeconds = n
		}
	}
	if v := os.Getenv("ALLOWED_CLOCK_SKEW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AllowedClockSkewSeconds = n
		}
	}
	if v := os.Getenv("NODE_ID"); v != "" {
		c.NodeID = v
	}
	if v := os.Getenv("ADMIN_JWKS_URL"); v != "" {
		c.AdminJwksURL = v
	}
	if v := os.Getenv("ADMIN_ISSUER"); v != "" {
		c.AdminIssuer = v
	}
	if v := os.Getenv("ADMIN_AUDIENCE"); v != "" {
		c.AdminAudience = v
	}
	if v := os.Getenv("ADMIN_STATIC_TOKEN"); v != "" {
		c.AdminStaticToken = v
	}
	if v := os.Getenv("INBOUND_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.InboundRateLimit.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("INBOUND_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.InboundRateLimit.BurstSize = n
		}
	}

	if c.Port == 0 {
		c.Port = 8080
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.SubscriptionsFile == "" {
		c.SubscriptionsFile = "subscriptions.yaml"
	}
	if c.TriggerIntervalSeconds <= 0 {
		c.TriggerIntervalSeconds = 15
	}
	if c.HealthCheckFactor <= 0 {
		c.HealthCheckFactor = 5
	}
	if c.LeaderLeaseSeconds <= 0 {
		c.LeaderLeaseSeconds = 3 * c.TriggerIntervalSeconds
	}
	if c.AllowedClockSkewSeconds <= 0 {
		c.AllowedClockSkewSeconds = 60
	}
	if c.NodeID == "" {
		host, _ := os.Hostname()
		c.NodeID = host
	}
	if c.AdminAudience == "" {
		c.AdminAudience = "sirihub-admin"
	}

	log.Printf("Gateway Config: {Port:%d Redis:%s Inbound:%s Trigger:%ds Factor:%d Lease:%ds}\n",
		c.Port, c.RedisAddr, c.InboundURL, c.TriggerIntervalSeconds, c.HealthCheckFactor, c.LeaderLeaseSeconds)
	return c, nil
}

func (c *Config) Validate() error {
	var errs []string
	env := strings.ToLower(strings.TrimSpace(c.Env))
	dev := env == "dev"

	if c.InboundURL == "" {
		if !dev {
			errs = append(errs, "inboundUrl is required in non-dev")
		}
	} else {
		u, err := url.Parse(c.InboundURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "inboundUrl must be a valid http(s) URL")
		}
	}

	if c.AdminJwksURL == "" {
		if !dev && c.AdminStaticToken == "" {
			errs = append(errs, "adminJwksUrl or adminStaticToken is required in non-dev")
		}
	} else {
		u, err := url.Parse(c.AdminJwksURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "adminJwksUrl must be a valid http(s) URL")
		}
	}
	if c.AdminJwksURL != "" && c.AdminIssuer == "" && !dev {
		errs = append(errs, "adminIssuer is required in non-dev")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
