package config

import (
	"os"
	"path"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Public  Public
	Private Private
}

// Public holds settings safe to commit. Durations are plain numbers of
// seconds in the yaml and converted by the accessor methods.
type Public struct {
	Port          int    `yaml:"port"`
	LogLevel      string `yaml:"log_level"`
	LogJSON       bool   `yaml:"log_json"`
	SecureCookies bool   `yaml:"secure_cookies"`

	CorsOrigins []string `yaml:"cors_origins"`

	AccessTTL       time.Duration `yaml:"access_ttl"`       // seconds
	RefreshTTL      time.Duration `yaml:"refresh_ttl"`      // seconds
	OtpTTL          time.Duration `yaml:"otp_ttl"`          // seconds
	VerificationTTL time.Duration `yaml:"verification_ttl"` // seconds
	ResetTTL        time.Duration `yaml:"reset_ttl"`        // seconds

	OtpLength        int           `yaml:"otp_length"`
	MaxLoginFailures int           `yaml:"max_login_failures"`
	LockWindow       time.Duration `yaml:"lock_window"` // seconds
}

type Private struct {
	JwtKey string `yaml:"jwt_key"`
	Pg     Pg     `yaml:"pg"`
	Redis  Redis  `yaml:"redis"`
	Email  Email  `yaml:"email"`
}

type Pg struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Dbname   string `yaml:"dbname"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	Db       int    `yaml:"db"`
}

type Email struct {
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	SenderName string `yaml:"sender_name"`
	Timeout    int    `yaml:"timeout"` // seconds
}

// implementing service.Config interface

func (c *Config) JwtKey() string {
	return c.Private.JwtKey
}

func (c *Config) AccessTTL() time.Duration {
	return c.Public.AccessTTL * time.Second
}

func (c *Config) RefreshTTL() time.Duration {
	return c.Public.RefreshTTL * time.Second
}

func (c *Config) OtpTTL() time.Duration {
	return c.Public.OtpTTL * time.Second
}

func (c *Config) VerificationTTL() time.Duration {
	return c.Public.VerificationTTL * time.Second
}

func (c *Config) ResetTTL() time.Duration {
	return c.Public.ResetTTL * time.Second
}

func (c *Config) LockWindow() time.Duration {
	return c.Public.LockWindow * time.Second
}

func mustLoadPath(configPath string, output interface{}) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		panic("can't read config file")
	}
	if err := yaml.Unmarshal(configFile, output); err != nil {
		panic("can't unmarshal config file")
	}
}

// MustLoad reads public.yaml and private.yaml from configFolder.
// Panics on any problem: a server without config cannot start anyway.
func MustLoad(configFolder string) *Config {
	var public Public
	mustLoadPath(path.Join(configFolder, "public.yaml"), &public)

	var private Private
	mustLoadPath(path.Join(configFolder, "private.yaml"), &private)

	return &Config{public, private}
}
