// Package config provides the YAML configuration shared by the command line tools
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fako1024/nciscale/pkg/publish"
	"github.com/fako1024/nciscale/pkg/transport"
	"gopkg.in/yaml.v3"
)

// Config denotes the complete tool configuration
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Protocol ProtocolConfig `yaml:"protocol"`
	Log      LogConfig      `yaml:"log"`
	API      APIConfig      `yaml:"api"`
	Poll     PollConfig     `yaml:"poll"`
	Redis    RedisConfig    `yaml:"redis"`
}

// SerialConfig denotes the serial port settings
type SerialConfig struct {
	Port             string        `yaml:"port"`
	Driver           string        `yaml:"driver"`
	BaudRate         int           `yaml:"baud"`
	DataBits         int           `yaml:"data_bits"`
	Parity           string        `yaml:"parity"`
	StopBits         int           `yaml:"stop_bits"`
	FlowControl      string        `yaml:"flow_control"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	InterByteTimeout time.Duration `yaml:"inter_byte_timeout"`
}

// ProtocolConfig denotes the request handling settings
type ProtocolConfig struct {
	Retries int  `yaml:"retries"`
	Mock    bool `yaml:"mock"`
}

// LogConfig denotes the logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Debug  bool   `yaml:"debug"`
}

// EffectiveLevel returns the configured log level, overridden by the debug switch
func (l LogConfig) EffectiveLevel() string {
	if l.Debug {
		return "debug"
	}
	return l.Level
}

// APIConfig denotes the REST API settings (empty Listen disables the API)
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// PollConfig denotes the continuous weight acquisition settings
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// RedisConfig denotes the Redis publishing settings
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
	History  int    `yaml:"history"`
}

// Default returns the default configuration
func Default() *Config {
	serial := transport.DefaultConfig()
	return &Config{
		Serial: SerialConfig{
			Driver:           string(serial.Driver),
			BaudRate:         serial.BaudRate,
			DataBits:         serial.DataBits,
			Parity:           serial.Parity.String(),
			StopBits:         serial.StopBits,
			FlowControl:      serial.FlowControl.String(),
			ReadTimeout:      serial.ReadTimeout,
			WriteTimeout:     serial.WriteTimeout,
			InterByteTimeout: 250 * time.Millisecond,
		},
		Protocol: ProtocolConfig{
			Retries: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Poll: PollConfig{
			Interval: time.Second,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: "nciscale:weight",
			History: 1000,
		},
	}
}

// Load reads a configuration file, applying it on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML configuration, applying it on top of the defaults
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if !c.Protocol.Mock {
		port, err := c.PortConfig()
		if err != nil {
			return err
		}
		if err := port.Validate(); err != nil {
			return fmt.Errorf("invalid serial configuration: %w", err)
		}
	}
	if c.Serial.InterByteTimeout <= 0 {
		return fmt.Errorf("invalid inter-byte timeout: %v", c.Serial.InterByteTimeout)
	}
	if c.Protocol.Retries < 0 {
		return fmt.Errorf("invalid number of retries: %d", c.Protocol.Retries)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("invalid poll interval: %v", c.Poll.Interval)
	}
	if format := strings.ToLower(c.Log.Format); format != "console" && format != "text" && format != "json" {
		return fmt.Errorf("invalid log format `%s`", c.Log.Format)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis enabled without address")
	}

	return nil
}

// PortConfig converts the serial settings into a transport configuration
func (c *Config) PortConfig() (transport.Config, error) {
	parity, err := transport.ParseParity(c.Serial.Parity)
	if err != nil {
		return transport.Config{}, err
	}
	flow, err := transport.ParseFlowControl(c.Serial.FlowControl)
	if err != nil {
		return transport.Config{}, err
	}

	return transport.Config{
		Port:         c.Serial.Port,
		Driver:       transport.Driver(strings.ToLower(c.Serial.Driver)),
		BaudRate:     c.Serial.BaudRate,
		DataBits:     c.Serial.DataBits,
		StopBits:     c.Serial.StopBits,
		Parity:       parity,
		FlowControl:  flow,
		ReadTimeout:  c.Serial.ReadTimeout,
		WriteTimeout: c.Serial.WriteTimeout,
	}, nil
}

// PublishOptions converts the Redis settings into publisher options
func (c *Config) PublishOptions() publish.Options {
	return publish.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		Channel:  c.Redis.Channel,
		History:  c.Redis.History,
	}
}
