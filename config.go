package zremote

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration 配置文件中的时间，如 "5s"
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config 客户端配置
type Config struct {
	Locator          string          `toml:"locator" yaml:"locator"`
	OpenTimeout      Duration        `toml:"open_timeout" yaml:"open_timeout"`
	HandshakeTimeout Duration        `toml:"handshake_timeout" yaml:"handshake_timeout"`
	WorkPoolSize     int             `toml:"work_pool_size" yaml:"work_pool_size"`
	LogLevel         string          `toml:"log_level" yaml:"log_level"`
	Discover         *DiscoverConfig `toml:"discover" yaml:"discover"`
}

// LoadConfig 按扩展名读取 toml 或 yaml 配置
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cnf := new(Config)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(raw, cnf)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, cnf)
	default:
		return nil, errors.Errorf("zremote: unsupported config file %s", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "zremote: load config %s", path)
	}
	return cnf, nil
}

// Options 转换为 Open 的参数，未设置的项保持默认
func (c *Config) Options() ([]Option, error) {
	var opts []Option
	logger := defaultLogger()
	if c.LogLevel != "" {
		l, err := NewLogger(c.LogLevel)
		if err != nil {
			return nil, err
		}
		logger = l
		opts = append(opts, WithLogger(l))
	}
	if c.OpenTimeout > 0 {
		opts = append(opts, WithOpenTimeout(time.Duration(c.OpenTimeout)))
	}
	if c.HandshakeTimeout > 0 {
		opts = append(opts, WithHandshakeTimeout(time.Duration(c.HandshakeTimeout)))
	}
	if c.WorkPoolSize != 0 {
		opts = append(opts, WithWorkPoolSize(c.WorkPoolSize))
	}
	if c.Discover != nil {
		if c.Discover.Logger == nil {
			c.Discover.Logger = logger
		}
		d, err := NewDiscover(c.Discover)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithDiscover(d))
	}
	return opts, nil
}
