package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

type Config struct {
	Host           string `env:"HOST,default=0.0.0.0"`
	Port           int    `env:"PORT,default=3000"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/badger"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`

	HistoryLimit         int           `env:"HISTORY_LIMIT,default=50"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=4000"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	BroadcastShards      int           `env:"BROADCAST_SHARDS,default=4"`
	BroadcastBufferSize  int           `env:"BROADCAST_BUFFER_SIZE,default=1024"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=10s"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,default=80"`

	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	SecureCookie      bool          `env:"SECURE_COOKIE,default=false"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`

	UploadDir      string `env:"UPLOAD_DIR,default=./public/uploads"`
	UploadMaxBytes int64  `env:"UPLOAD_MAX_BYTES,default=5242880"`

	ModerationWordsDir   string `env:"MODERATION_WORDS_DIR"`
	CharacterReplacement string `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`

	DebugPort int `env:"DEBUG_PORT"`
}

// Address is the listen address of the HTTP server.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Origins splits ALLOWED_ORIGINS on commas, dropping blanks.
func (c Config) Origins() []string {
	parts := lo.Map(strings.Split(c.AllowedOrigins, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Compact(parts)
}

// Validate rejects values the relay cannot start with.
func (c Config) Validate() error {
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must hold at least 32 characters")
	}
	if c.HistoryLimit <= 0 || c.MaxContentLength <= 0 || c.ConnectionBufferSize <= 0 ||
		c.BroadcastShards <= 0 || c.BroadcastBufferSize <= 0 || c.UploadMaxBytes <= 0 {
		return fmt.Errorf("limits and buffer sizes must be positive")
	}
	if len(c.Origins()) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS must name at least one origin or *")
	}
	return nil
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"MODERATION_CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
