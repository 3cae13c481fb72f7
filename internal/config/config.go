package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Contact struct {
	ID       string `mapstructure:"id"`
	Username string `mapstructure:"username"`
}

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	Secret      string        `mapstructure:"secret"`
	GatewayURL  string        `mapstructure:"gateway_url"`
	SelfID      string        `mapstructure:"self_id"`
	DisplayName string        `mapstructure:"display_name"`
	RingTimeout time.Duration `mapstructure:"ring_timeout"`
	StunServers []string      `mapstructure:"stun_servers"`
	DBPath      string        `mapstructure:"db_path"`
	Microphone  string        `mapstructure:"microphone"`
	Contacts    []Contact     `mapstructure:"contacts"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "dial-dev-secret")
	v.SetDefault("gateway_url", "ws://localhost:9000/gateway")
	v.SetDefault("ring_timeout", "30s")
	v.SetDefault("stun_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("db_path", "dial.db")
	v.SetDefault("microphone", "undetermined")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.SelfID == "" {
		return nil, fmt.Errorf("self_id is required")
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Self: %s\n", cfg.Mode, cfg.Port, cfg.SelfID)
	return &cfg, nil
}
