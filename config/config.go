package config

import (
	"encoding/json"
	"log"
	"os"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Kafka    KafkaConfig    `json:"kafka"`
	Auth     AuthConfig     `json:"auth"`
	Upload   UploadConfig   `json:"upload"`
}

type ServerConfig struct {
	Addr         string   `json:"addr"`
	AllowOrigins []string `json:"allow_origins"`
}

type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"` // 密码，没有则留空
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type KafkaConfig struct {
	Enabled  bool     `json:"enabled"`
	Brokers  []string `json:"brokers"`
	Topic    string   `json:"topic"`    // 会话事件审计 topic
	GroupID  string   `json:"group_id"` // 消费组
	Username string   `json:"username"`
	Password string   `json:"password"`
	UseSCRAM bool     `json:"use_scram"`
	UseTLS   bool     `json:"use_tls"`
	CertFile string   `json:"cert_file"`
	KeyFile  string   `json:"key_file"`
	CAFile   string   `json:"ca_file"`
}

type AuthConfig struct {
	JWTSecret     string `json:"jwt_secret"`
	TokenExpiry   int    `json:"token_expiry"`   // in hours
	RefreshExpiry int    `json:"refresh_expiry"` // in hours
}

type UploadConfig struct {
	Dir          string `json:"dir"`            // 附件存储目录
	MaxSizeBytes int64  `json:"max_size_bytes"` // 单文件大小上限
}

func LoadConfig() (config Config, err error) {
	path := os.Getenv("SHOPHUB_CONFIG")
	if path == "" {
		path = "config/config.json"
	}
	file, err := os.Open(path)
	if err != nil {
		return config, err
	}
	defer func(file *os.File) {
		closeErr := file.Close()
		if closeErr != nil {
			log.Printf("Error closing config file: %v", closeErr)
		}
	}(file)
	decoder := json.NewDecoder(file)
	err = decoder.Decode(&config)
	if err != nil {
		return config, err
	}
	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Upload.Dir == "" {
		config.Upload.Dir = "uploads/support"
	}
	if config.Upload.MaxSizeBytes == 0 {
		config.Upload.MaxSizeBytes = 20 << 20
	}
	return config, nil
}
