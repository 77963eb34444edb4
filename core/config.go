package core

import (
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName string
		Env     string // DEV (default), TEST, QA, PROD
		Debug   bool
		Build   string

		// SecretKey signs session tokens. When it is not provided via
		// configuration, a fresh random key is generated at process start:
		// every token issued by a previous run becomes invalid on restart.
		SecretKey []byte

		TokenExpirationDelta time.Duration
		MaxUploadSize        int64

		RollbarToken     string
		DefaultFromEmail string
		SendgridAPIKey   string

		Server   ServerConfig
		Database DatabaseConfig
	}

	ServerConfig struct {
		Host string
		Port string
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool

		// connection pool bounds; exhaustion is a visible failure, not a block
		MinConns int
		MaxConns int
	}
)

func (c ServerConfig) Address() string   { return net.JoinHostPort(c.Host, c.Port) }
func (c DatabaseConfig) Address() string { return net.JoinHostPort(c.Host, c.Port) }

func (c *Config) IsTestMode() bool { return c.Env == "TEST" }

// NewConfig loads the app configuration from the environment,
// with optional overrides from config/.env.<env>.
func NewConfig() (*Config, error) {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "EdHub")
	v.SetDefault("secretKey", "")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("tokenExpirationDelta", 30*time.Minute)
	v.SetDefault("maxUploadSize", 5<<20)
	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverPort", "8000")
	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "edhub")
	v.SetDefault("dbUser", "")
	v.SetDefault("dbPassword", "")
	v.SetDefault("dbAdminUser", "")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)
	v.SetDefault("dbMinConns", 2)
	v.SetDefault("dbMaxConns", 20)
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err = godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}
	v.AutomaticEnv()

	conf := &Config{
		AppName:              v.GetString("appName"),
		Env:                  env,
		Debug:                v.GetBool("debug"),
		Build:                v.GetString("build"),
		SecretKey:            []byte(v.GetString("secretKey")),
		TokenExpirationDelta: v.GetDuration("tokenExpirationDelta"),
		MaxUploadSize:        v.GetInt64("maxUploadSize"),
		RollbarToken:         v.GetString("rollbarToken"),
		DefaultFromEmail:     v.GetString("defaultFromEmail"),
		SendgridAPIKey:       v.GetString("sendgridApiKey"),
		Server: ServerConfig{
			Host: v.GetString("serverHost"),
			Port: v.GetString("serverPort"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
			MinConns:      v.GetInt("dbMinConns"),
			MaxConns:      v.GetInt("dbMaxConns"),
		},
	}

	if len(conf.SecretKey) == 0 {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, errors.Wrap(err, "generating secret key")
		}
		conf.SecretKey = key
	}
	return conf, nil
}
