package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Settings contains the application config.
type Settings struct {
	Port           int      `env:"PORT" envDefault:"5000"`
	GinMode        string   `env:"GIN_MODE" envDefault:"debug"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	ServiceName    string   `env:"SERVICE_NAME" envDefault:"whatsapp-relay"`
	RoutePrefix    string   `env:"ROUTE_PREFIX" envDefault:"/api/whatsapp"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://127.0.0.1:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"whatsapp-bot"`

	WebhookVerifyToken  string `env:"WEBHOOK_VERIFY_TOKEN,required,notEmpty"`
	WebhookProcessBatch bool   `env:"WEBHOOK_PROCESS_BATCH" envDefault:"false"`

	UploadDir   string `env:"UPLOAD_DIR" envDefault:"uploads"`
	MaxUploadMB int64  `env:"MAX_UPLOAD_MB" envDefault:"16"`

	DashboardJWTSecret string  `env:"DASHBOARD_JWT_SECRET"`
	RateLimitRPS       float64 `env:"RATE_LIMIT_RPS" envDefault:"0"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" envDefault:"20"`

	WhatsApp WhatsAppSettings `envPrefix:"WHATSAPP_"`
	Redis    RedisSettings    `envPrefix:"REDIS_"`
}

// WhatsAppSettings holds the Cloud API credentials and endpoint.
type WhatsAppSettings struct {
	Token            string        `env:"TOKEN,required,notEmpty"`
	PhoneNumberID    string        `env:"PHONE_NUMBER_ID,required,notEmpty"`
	AppSecret        string        `env:"APP_SECRET"`
	GraphURL         string        `env:"GRAPH_URL" envDefault:"https://graph.facebook.com"`
	APIVersion       string        `env:"API_VERSION" envDefault:"v21.0"`
	TemplateLanguage string        `env:"TEMPLATE_LANGUAGE" envDefault:"en_US"`
	HTTPTimeout      time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
}

// RedisSettings is optional; an empty Addr disables the media cache.
type RedisSettings struct {
	Addr     string        `env:"ADDR"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	MediaTTL time.Duration `env:"MEDIA_TTL" envDefault:"4m"`
}

func (r RedisSettings) Enabled() bool {
	return r.Addr != ""
}

// Load reads envFile when present and parses the environment into Settings.
func Load(envFile string) (*Settings, error) {
	if envFile != "" {
		// a missing .env file is fine, the process environment still applies
		_ = godotenv.Load(envFile)
	}

	settings, err := env.ParseAs[Settings]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := validate(&settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

func validate(s *Settings) error {
	var errs []error
	if s.Port <= 0 {
		errs = append(errs, errors.New("PORT must be > 0"))
	}
	if s.RoutePrefix != "" && !strings.HasPrefix(s.RoutePrefix, "/") {
		errs = append(errs, fmt.Errorf("ROUTE_PREFIX must start with '/', got %q", s.RoutePrefix))
	}
	if s.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_MB must be > 0"))
	}
	if s.RateLimitRPS < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS must be >= 0"))
	}
	if s.RateLimitRPS > 0 && s.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_BURST must be > 0 when rate limiting is enabled"))
	}
	if s.Redis.Enabled() && s.Redis.MediaTTL <= 0 {
		errs = append(errs, errors.New("REDIS_MEDIA_TTL must be > 0"))
	}
	switch s.GinMode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("GIN_MODE must be debug, release or test, got %q", s.GinMode))
	}
	return errors.Join(errs...)
}

// MessagesURL is the Graph endpoint for sending from the configured business number.
func (w WhatsAppSettings) MessagesURL() string {
	return fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(w.GraphURL, "/"), w.APIVersion, w.PhoneNumberID)
}

// MediaUploadURL is the Graph endpoint for uploading media for the business number.
func (w WhatsAppSettings) MediaUploadURL() string {
	return fmt.Sprintf("%s/%s/%s/media", strings.TrimRight(w.GraphURL, "/"), w.APIVersion, w.PhoneNumberID)
}

// MediaURL resolves a media id to its metadata endpoint.
func (w WhatsAppSettings) MediaURL(mediaID string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(w.GraphURL, "/"), w.APIVersion, mediaID)
}
