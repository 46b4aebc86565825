package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type JWTConfig struct {
	SecretKey      string        `mapstructure:"secretKey"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"accessTokenTTL"`
}

type AuthConfig struct {
	JWT                  JWTConfig     `mapstructure:"jwt"`
	PasswordCost         int           `mapstructure:"passwordCost"`
	HashConcurrency      int           `mapstructure:"hashConcurrency"`
	AdminInviteToken     string        `mapstructure:"adminInviteToken"`
	ResetTokenTTL        time.Duration `mapstructure:"resetTokenTTL"`
	ResetRequestCooldown time.Duration `mapstructure:"resetRequestCooldown"`
	ResetURL             string        `mapstructure:"resetURL"`
	// Throttle selects the reset-request throttle backend: "memory" or "redis".
	Throttle string `mapstructure:"throttle"`
}

type MailConfig struct {
	Driver   string `mapstructure:"driver"` // "log" or "smtp"
	From     string `mapstructure:"from"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type S3Config struct {
	Region       string `mapstructure:"region"`
	Bucket       string `mapstructure:"bucket"`
	BaseEndpoint string `mapstructure:"baseEndpoint"`
	AccessKey    string `mapstructure:"accessKey"`
	SecretKey    string `mapstructure:"secretKey"`
}

type UploadConfig struct {
	Driver        string   `mapstructure:"driver"` // "local" or "s3"
	Dir           string   `mapstructure:"dir"`
	PublicBaseURL string   `mapstructure:"publicBaseURL"`
	MaxBytes      int64    `mapstructure:"maxBytes"`
	S3            S3Config `mapstructure:"s3"`
}

type Config struct {
	Mode     string `mapstructure:"mode"`
	Dotenv   string `mapstructure:"dotenv"`
	Handlers struct {
		Prometheus struct {
			Port string `mapstructure:"port"`
		} `mapstructure:"prometheus"`
	} `mapstructure:"handlers"`
	Repositories struct {
		// Driver selects the credential store: "postgres" or "memory".
		Driver   string `mapstructure:"driver"`
		Postgres struct {
			Host              string `mapstructure:"host"`
			Password          string `mapstructure:"password"`
			Port              string `mapstructure:"port"`
			Username          string `mapstructure:"username"`
			DB                string `mapstructure:"db"`
			SSLMODE           string `mapstructure:"SSLMODE"`
			MAXCONWAITINGTIME int    `mapstructure:"MAXCONWAITINGTIME"`
		} `mapstructure:"postgres"`
		Redis struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
		} `mapstructure:"redis"`
	} `mapstructure:"repositories"`
	Server struct {
		HTTPPort       string        `mapstructure:"HTTPPort"`
		Timeout        time.Duration `mapstructure:"HTTPTimeout"`
		AllowedOrigins []string      `mapstructure:"allowedOrigins"`
	} `mapstructure:"server"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Mail   MailConfig   `mapstructure:"mail"`
	Upload UploadConfig `mapstructure:"upload"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")
	v.AddConfigPath("/usr/local/bin")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	// AUTH_JWT_SECRETKEY overrides auth.jwt.secretKey, etc.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %s", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %s", err)
	}
	if err = config.Validate(); err != nil {
		return Config{}, err
	}
	fmt.Println("Successfully loaded app configs...")
	return config, nil
}

// Validate rejects configurations the auth core cannot run with.
// PlaceholderSecretKey is the signing key shipped in config.yml. It is only
// accepted in development mode.
const PlaceholderSecretKey = "change-me-in-env"

// MinSecretKeyLength is the shortest signing key accepted outside development.
const MinSecretKeyLength = 32

func (c Config) Validate() error {
	if c.Auth.JWT.SecretKey == "" {
		return fmt.Errorf("auth.jwt.secretKey must be set")
	}
	if c.Mode != "development" {
		if c.Auth.JWT.SecretKey == PlaceholderSecretKey {
			return fmt.Errorf("auth.jwt.secretKey is the placeholder value; set AUTH_JWT_SECRETKEY in %q mode", c.Mode)
		}
		if len(c.Auth.JWT.SecretKey) < MinSecretKeyLength {
			return fmt.Errorf("auth.jwt.secretKey must be at least %d bytes in %q mode", MinSecretKeyLength, c.Mode)
		}
	}
	if c.Auth.JWT.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.jwt.accessTokenTTL must be positive")
	}
	if c.Auth.ResetTokenTTL <= 0 {
		return fmt.Errorf("auth.resetTokenTTL must be positive")
	}
	switch c.Repositories.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown repositories.driver %q", c.Repositories.Driver)
	}
	return nil
}
