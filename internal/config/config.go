// Package config loads ragchat settings from flags, RAGCHAT_* environment
// variables and an optional YAML file, in that order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "RAGCHAT"

// Client holds the settings of the ragchat client
type Client struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	LogLevel  string        `mapstructure:"log_level"`
	LogFile   string        `mapstructure:"log_file"`
}

// Server holds the settings of ragchat-server
type Server struct {
	Addr          string `mapstructure:"addr"`
	DBPath        string `mapstructure:"db_path"`
	Corpus        string `mapstructure:"corpus"`
	Model         string `mapstructure:"model"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`
	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	TopK          int    `mapstructure:"top_k"`
	MaxTokens     int    `mapstructure:"max_tokens"`
	LogLevel      string `mapstructure:"log_level"`
}

// Dir is the directory holding ragchat's default files
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ragchat"
	}
	return filepath.Join(home, ".ragchat")
}

// ClientDefaults registers the client defaults on v
func ClientDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "http://127.0.0.1:8000")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", filepath.Join(Dir(), "ragchat.log"))
}

// ServerDefaults registers the server defaults on v
func ServerDefaults(v *viper.Viper) {
	v.SetDefault("addr", "127.0.0.1:8000")
	v.SetDefault("db_path", filepath.Join(Dir(), "chats.db"))
	v.SetDefault("corpus", "")
	v.SetDefault("model", "gpt-4o-mini")
	v.SetDefault("openai_base_url", "")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("top_k", 3)
	v.SetDefault("max_tokens", 1000)
	v.SetDefault("log_level", "info")
}

// New creates a viper instance reading RAGCHAT_* variables and, if set,
// the config file at path. A missing default file is not an error.
func New(path string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = errors.Wrapf(err, "binding flag %s", f.Name)
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	if path == "" {
		path = filepath.Join(Dir(), "config.yaml")
		if _, err := os.Stat(path); err != nil {
			return v, nil
		}
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	return v, nil
}

// LoadClient decodes the client settings from v
func LoadClient(v *viper.Viper) (*Client, error) {
	ClientDefaults(v)
	var c Client
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "decoding client config")
	}
	if c.ServerURL == "" {
		return nil, errors.New("server_url is required")
	}
	return &c, nil
}

// LoadServer decodes the server settings from v. The OpenAI key falls
// back to OPENAI_API_KEY.
func LoadServer(v *viper.Viper) (*Server, error) {
	ServerDefaults(v)
	var s Server
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrap(err, "decoding server config")
	}
	if s.OpenAIAPIKey == "" {
		s.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if s.TopK < 0 {
		return nil, errors.Errorf("top_k must not be negative, got %d", s.TopK)
	}
	return &s, nil
}
