package config

import (
	"log/slog"
	"os"
	"strings"
)

// Server captures process-level configuration. Empty backends mean the
// in-memory implementations are used, which keeps development and CI honest
// without containers.
type Server struct {
	Addr          string
	PostgresDSN   string
	RedisURL      string
	KafkaBrokers  []string
	AuditTopic    string
	JWTSigningKey string
	LogLevel      slog.Level
}

// FromEnv builds a Server config from environment variables so main stays
// lean.
func FromEnv() Server {
	addr := os.Getenv("ASSENT_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	topic := os.Getenv("ASSENT_AUDIT_TOPIC")
	if topic == "" {
		topic = "assent.audit"
	}

	var brokers []string
	if raw := os.Getenv("ASSENT_KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	level := slog.LevelInfo
	if os.Getenv("ASSENT_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	return Server{
		Addr:          addr,
		PostgresDSN:   os.Getenv("ASSENT_POSTGRES_DSN"),
		RedisURL:      os.Getenv("ASSENT_REDIS_URL"),
		KafkaBrokers:  brokers,
		AuditTopic:    topic,
		JWTSigningKey: os.Getenv("ASSENT_JWT_SIGNING_KEY"),
		LogLevel:      level,
	}
}
