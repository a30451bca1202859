package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"ladder/domain/ticks"
)

// Config is the server configuration. Load applies defaults, then the
// YAML file, then LADDER_* environment overrides, then Validate.
type Config struct {
	Instrument struct {
		Symbol      string `yaml:"symbol"`
		TickSize    string `yaml:"tick_size"`
		DepthLevels int    `yaml:"depth_levels"`
		// MaxOrderQty caps a single order; 0 keeps the engine default.
		MaxOrderQty int64  `yaml:"max_order_qty"`
	} `yaml:"instrument"`

	GRPC struct {
		Addr string `yaml:"addr"`
	} `yaml:"grpc"`

	HTTP struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"http"`

	WAL struct {
		Dir         string `yaml:"dir"`
		SegmentSize int64  `yaml:"segment_size"`
	} `yaml:"wal"`

	Outbox struct {
		Dir string `yaml:"dir"`
	} `yaml:"outbox"`

	Snapshot struct {
		Dir      string        `yaml:"dir"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"snapshot"`

	Broker struct {
		// Driver is sarama, kafka-go or none.
		Driver       string        `yaml:"driver"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic"`
		PollInterval time.Duration `yaml:"poll_interval"`
		MaxRetries   uint32        `yaml:"max_retries"`
	} `yaml:"broker"`

	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"redis"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"logging"`
}

func Default() *Config {
	c := &Config{}
	c.Instrument.Symbol = "LDR-USD"
	c.Instrument.TickSize = "0.01"
	c.Instrument.DepthLevels = 5
	c.GRPC.Addr = ":50051"
	c.HTTP.Enabled = true
	c.HTTP.Addr = ":8080"
	c.WAL.Dir = "./data/wal_entry"
	c.WAL.SegmentSize = 2 * 1024 * 1024
	c.Outbox.Dir = "./data/wal_exit"
	c.Snapshot.Dir = "./data/snapshots"
	c.Snapshot.Interval = 30 * time.Second
	c.Broker.Driver = "none"
	c.Broker.Topic = "ladder.events"
	c.Broker.PollInterval = 250 * time.Millisecond
	c.Broker.MaxRetries = 5
	c.Redis.Addr = "localhost:6379"
	c.Redis.TTL = 5 * time.Minute
	c.Logging.Level = "info"
	c.Logging.MaxSizeMB = 10
	c.Logging.MaxBackups = 3
	c.Logging.MaxAgeDays = 28
	return c
}

// Load reads path on top of the defaults. An empty path uses defaults
// and environment only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config")
		}
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Instrument.Symbol == "" {
		return errors.New("instrument.symbol is required")
	}
	if _, err := ticks.NewConverter(c.Instrument.TickSize); err != nil {
		return errors.Wrap(err, "instrument.tick_size")
	}
	if c.Instrument.DepthLevels <= 0 {
		return errors.New("instrument.depth_levels must be positive")
	}
	if c.Instrument.MaxOrderQty < 0 {
		return errors.New("instrument.max_order_qty must not be negative")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return errors.New("http.addr is required when http is enabled")
	}
	if c.WAL.Dir == "" || c.WAL.SegmentSize <= 0 {
		return errors.New("wal.dir and a positive wal.segment_size are required")
	}
	if c.Outbox.Dir == "" {
		return errors.New("outbox.dir is required")
	}
	if c.Snapshot.Dir == "" || c.Snapshot.Interval <= 0 {
		return errors.New("snapshot.dir and a positive snapshot.interval are required")
	}

	switch c.Broker.Driver {
	case "none":
	case "sarama", "kafka-go":
		if len(c.Broker.Brokers) == 0 || c.Broker.Topic == "" {
			return errors.Newf("broker driver %s needs brokers and topic", c.Broker.Driver)
		}
		if c.Broker.PollInterval <= 0 {
			return errors.New("broker.poll_interval must be positive")
		}
	default:
		return errors.Newf("unknown broker driver %q", c.Broker.Driver)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	return nil
}

func overrideWithEnv(c *Config) {
	if v := os.Getenv("LADDER_SYMBOL"); v != "" {
		c.Instrument.Symbol = v
	}
	if v := os.Getenv("LADDER_TICK_SIZE"); v != "" {
		c.Instrument.TickSize = v
	}
	if v := os.Getenv("LADDER_GRPC_ADDR"); v != "" {
		c.GRPC.Addr = v
	}
	if v := os.Getenv("LADDER_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("LADDER_BROKER_DRIVER"); v != "" {
		c.Broker.Driver = v
	}
	if v := os.Getenv("LADDER_BROKERS"); v != "" {
		c.Broker.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("LADDER_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("LADDER_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("LADDER_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Redis.Enabled = b
		}
	}
	if v := os.Getenv("LADDER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}
