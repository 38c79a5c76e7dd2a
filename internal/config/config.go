package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
	AppURL      string   `mapstructure:"APP_URL"`
	PublicURL   string   `mapstructure:"PUBLIC_URL"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	JWTSecret               string        `mapstructure:"JWT_SECRET"`
	JWTIssuer               string        `mapstructure:"JWT_ISSUER"`
	JWTTTL                  time.Duration `mapstructure:"JWT_TTL"`
	AdminEmails             []string      `mapstructure:"ADMIN_EMAILS"`
	FirebaseCredentialsFile string        `mapstructure:"FIREBASE_CREDENTIALS_FILE"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
	SupportEmail string `mapstructure:"SUPPORT_EMAIL"`

	TwilioAccountSID      string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken       string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber      string `mapstructure:"TWILIO_FROM_NUMBER"`
	SMSDefaultCountryCode string `mapstructure:"SMS_DEFAULT_COUNTRY_CODE"`

	OTPStore      string        `mapstructure:"OTP_STORE"`
	OTPTTL        time.Duration `mapstructure:"OTP_TTL"`
	OTPExposeCode bool          `mapstructure:"OTP_EXPOSE_CODE"`
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`

	BlobBackend    string        `mapstructure:"BLOB_BACKEND"`
	BlobBucket     string        `mapstructure:"BLOB_BUCKET"`
	BlobURLTTL     time.Duration `mapstructure:"BLOB_URL_TTL"`
	MinioEndpoint  string        `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey string        `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey string        `mapstructure:"MINIO_SECRET_KEY"`
	MinioUseSSL    bool          `mapstructure:"MINIO_USE_SSL"`
	AWSRegion      string        `mapstructure:"AWS_REGION"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
	"APP_URL", "PUBLIC_URL",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"JWT_SECRET", "JWT_ISSUER", "JWT_TTL", "ADMIN_EMAILS", "FIREBASE_CREDENTIALS_FILE",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASSWORD", "SMTP_FROM", "SUPPORT_EMAIL",
	"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER", "SMS_DEFAULT_COUNTRY_CODE",
	"OTP_STORE", "OTP_TTL", "OTP_EXPOSE_CODE", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"BLOB_BACKEND", "BLOB_BUCKET", "BLOB_URL_TTL",
	"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_USE_SSL", "AWS_REGION",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("APP_URL", "http://localhost:3000")
	v.SetDefault("PUBLIC_URL", "http://localhost:8000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("JWT_ISSUER", "wardwatch")
	v.SetDefault("JWT_TTL", "12h")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMS_DEFAULT_COUNTRY_CODE", "+91")
	v.SetDefault("OTP_STORE", "memory")
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("BLOB_BACKEND", "memory")
	v.SetDefault("BLOB_BUCKET", "profile-images")
	v.SetDefault("BLOB_URL_TTL", "15m")
	v.SetDefault("AWS_REGION", "ap-south-1")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Unmarshal splits on whitespace only, so comma lists are parsed here.
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.AdminEmails = lo.Map(splitList(v.GetString("ADMIN_EMAILS")), func(e string, _ int) string {
		return strings.ToLower(e)
	})

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.OTPExposeCode {
		log.Println("WARNING: OTP_EXPOSE_CODE is enabled; one-time codes are returned to callers.")
	}

	return cfg, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	parts = lo.Map(parts, func(p string, _ int) string { return strings.TrimSpace(p) })
	return lo.Compact(parts)
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// SMTPConfigured reports whether outbound email can be attempted.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPUser != "" && c.SMTPPassword != ""
}

// TwilioConfigured reports whether outbound SMS can be attempted.
func (c *Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

// Validate checks that the configuration is safe to run. Outside development a
// signing secret is mandatory; OTP and blob backends must be known names.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(c.JWTSecret))
	}

	switch c.OTPStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("OTP_STORE must be \"memory\" or \"redis\", got %q", c.OTPStore)
	}
	if c.OTPExposeCode && !c.IsDev() {
		return fmt.Errorf("OTP_EXPOSE_CODE may only be enabled when ENV=development")
	}

	switch c.BlobBackend {
	case "memory":
	case "minio":
		if c.MinioEndpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required when BLOB_BACKEND is \"minio\"")
		}
	case "s3":
		if c.BlobBucket == "" {
			return fmt.Errorf("BLOB_BUCKET is required when BLOB_BACKEND is \"s3\"")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be \"memory\", \"minio\", or \"s3\", got %q", c.BlobBackend)
	}

	return nil
}
