package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Env            string `env:"ENVIRONMENT"`
	BasicAuthCreds string `env:"BASIC_AUTH_CREDS"`
	ServerPort     int    `env:"SERVER_PORT" envDefault:"8080"`
	DataDir        string `env:"DATA_DIR" envDefault:"./data"`

	APIKeys           string   `env:"YOUTUBE_API_KEYS"`
	ChannelIDs        []string `env:"CHANNEL_IDS" envSeparator:","`
	SubscriptionsFile string   `env:"SUBSCRIPTIONS_FILE"`
	PollIntervalSecs  int      `env:"POLL_INTERVAL_SECS"` // 0 = derive from quota arithmetic
	NotifyEmails      []string `env:"NOTIFY_EMAILS" envSeparator:","`

	Mailgun struct {
		Domain      string `env:"MAILGUN_DOMAIN"`
		APIKey      string `env:"MAILGUN_API_KEY"`
		SenderFrom  string `env:"MAILGUN_SENDER"`
		TimeoutSecs int    `env:"MAILGUN_TIMEOUT_SECS" envDefault:"10"`
	}

	log   *zap.Logger
	creds map[string]string
	keys  []string
}

func NewConfig(lc fx.Lifecycle, log *zap.Logger) *Config {
	cfg := &Config{log: log}
	env.Parse(cfg)

	creds, err := cfg.parseCreds()
	if err != nil {
		if cfg.Env != "development" {
			cfg.log.Sugar().Infof("%s (credentials will be set to default in development env)", err)
			creds = map[string]string{"admin": "password"}
		} else {
			cfg.log.Sugar().Panic(err)
		}
	}
	cfg.creds = creds

	keys, err := cfg.parseAPIKeys()
	if err != nil {
		cfg.log.Sugar().Panic(err)
	}
	cfg.keys = keys

	return cfg
}

func (cfg *Config) GetCreds() map[string]string {
	return cfg.creds
}

// GetAPIKeys returns the usable entries of the credential set, in the order
// they were configured.
func (cfg *Config) GetAPIKeys() []string {
	return cfg.keys
}

func (cfg *Config) parseCreds() (map[string]string, error) {
	if cfg.BasicAuthCreds == "" {
		return nil, errors.New("BASIC_AUTH_CREDS envvar must be populated")
	}

	creds := strings.Split(cfg.BasicAuthCreds, ",")
	if len(creds) == 0 {
		return nil, errors.New("BASIC_AUTH_CREDS envvar should be filled with comma-separated values -- user1:pass1,user2:pass2")
	}

	result := make(map[string]string)
	for _, cred := range creds {
		userPass := strings.Split(cred, ":")
		if len(userPass) != 2 {
			return nil, fmt.Errorf("failed to parse '%s', each credential should be delimited by a colon -- user1:pass1,user2:pass2", cred)
		}

		user, pass := userPass[0], userPass[1]
		result[strings.Trim(user, " ")] = strings.Trim(pass, " ")
	}

	return result, nil
}

func (cfg *Config) parseAPIKeys() ([]string, error) {
	if cfg.APIKeys == "" {
		return nil, errors.New("YOUTUBE_API_KEYS envvar must be populated")
	}

	keys := make([]string, 0)
	for _, key := range strings.Split(cfg.APIKeys, ",") {
		key = strings.Trim(key, " ")
		if key == "" {
			// A blank entry is fatal for that key only, the rest of the set stays usable.
			cfg.log.Sugar().Error("Dropping blank entry in YOUTUBE_API_KEYS")
			continue
		}
		keys = append(keys, key)
	}

	if len(keys) == 0 {
		return nil, errors.New("YOUTUBE_API_KEYS envvar should be filled with comma-separated API keys -- key1,key2")
	}
	return keys, nil
}
