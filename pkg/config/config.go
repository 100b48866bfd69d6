package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
		Source    Source    `envPrefix:"SOURCE_"`
		Cache     Cache     `envPrefix:"CACHE_"`
		Redis     Redis     `envPrefix:"REDIS_"`
		Provider  Provider  `envPrefix:"PROVIDER_"`
		Pyramid   Pyramid   `envPrefix:"PYRAMID_"`
		Layer     Layer     `envPrefix:"LAYER_"`
		View      View      `envPrefix:"VIEW_"`
	}

	HTTP struct {
		Server  Server        `envPrefix:"SERVER_"`
		Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	}

	Server struct {
		Port         string        `env:"PORT,required" validate:"required"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level string `env:"LEVEL,required" validate:"required"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"guide-helper-vtiles"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"otel-collector.observability.svc.cluster.local:4317"`
	}

	// Source describes where raw tiles come from.
	Source struct {
		URLTemplate  string        `env:"URL_TEMPLATE,required" validate:"required"`
		Timeout      time.Duration `env:"TIMEOUT" envDefault:"10s" validate:"gt=0"`
		UserAgent    string        `env:"USER_AGENT" envDefault:"GuideHelper/1.0 (https://github.com/jaennil/guide_helper)"`
		MaxIdleConns int           `env:"MAX_IDLE_CONNS" envDefault:"64" validate:"min=1"`
	}

	Cache struct {
		Backend    string        `env:"BACKEND" envDefault:"memory" validate:"oneof=none map memory filesystem sqlite redis tiered"`
		Dir        string        `env:"DIR" envDefault:"./tile-cache"`
		SQLitePath string        `env:"SQLITE_PATH" envDefault:"tiles.mbtiles"`
		MemoryMB   int           `env:"MEMORY_MB" envDefault:"256" validate:"min=1"`
		MemoryTTL  time.Duration `env:"MEMORY_TTL" envDefault:"1h"`
		Slow       string        `env:"SLOW_BACKEND" envDefault:"sqlite" validate:"oneof=filesystem sqlite redis"`
	}

	Redis struct {
		Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
		Password string        `env:"PASSWORD" envDefault:""`
		DB       int           `env:"DB" envDefault:"0"`
		TTL      time.Duration `env:"TTL" envDefault:"24h"`
	}

	Provider struct {
		Workers          int           `env:"WORKERS" envDefault:"8" validate:"min=1"`
		CompletionBuffer int           `env:"COMPLETION_BUFFER" envDefault:"256" validate:"min=1"`
		FetchTimeout     time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s" validate:"gt=0"`
		QueueSize        int           `env:"EVENT_QUEUE_SIZE" envDefault:"1024" validate:"min=0"`
	}

	Pyramid struct {
		Preset   string `env:"PRESET" envDefault:"galileo" validate:"oneof=web-mercator galileo"`
		Levels   int    `env:"LEVELS" envDefault:"16" validate:"min=1,max=30"`
		TileSize int    `env:"TILE_SIZE" envDefault:"1024" validate:"min=1"`
	}

	Layer struct {
		RetainTiles    int           `env:"RETAIN_TILES" envDefault:"64" validate:"min=0"`
		FrameInterval  time.Duration `env:"FRAME_INTERVAL" envDefault:"16ms" validate:"gt=0"`
		HitTolerancePx float64       `env:"HIT_TOLERANCE_PX" envDefault:"3" validate:"min=0"`
	}

	// View is the initial camera.
	View struct {
		CenterX    float64 `env:"CENTER_X" envDefault:"0"`
		CenterY    float64 `env:"CENTER_Y" envDefault:"0"`
		Resolution float64 `env:"RESOLUTION" envDefault:"2445.98490512564" validate:"gt=0"`
		Width      int     `env:"WIDTH" envDefault:"1280" validate:"min=1"`
		Height     int     `env:"HEIGHT" envDefault:"720" validate:"min=1"`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
