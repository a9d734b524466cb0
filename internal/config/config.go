package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/smallbiznis/coursepay/internal/signature"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewCatalogHolder),
)

// Config holds application configuration. It is loaded once at startup and
// passed by value, so components never observe a change mid-request.
type Config struct {
	AppName          string
	AppVersion       string
	Environment      string
	HTTPAddr         string
	BaseURL          string
	AuthCookieSecure bool

	LogLevel     string
	LogFormat    string
	OTLPEndpoint string
	OTLPProtocol string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBMetricsEnabled  bool
	DBTracingEnabled  bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimit RateLimitConfig

	CatalogPath string

	Gateway GatewayConfig
	Promo   PromoConfig
	Access  AccessConfig
	Email   EmailConfig
}

// GatewayConfig carries the merchant credentials and checkout presentation
// settings of the payment gateway.
type GatewayConfig struct {
	Endpoint      string
	MerchantLogin string
	Password1     string
	Password2     string
	Algorithm     signature.Algorithm
	TestMode      bool
	Description   string
	Culture       string
	Encoding      string
	SuccessURL    string
	FailURL       string

	ReceiptEnabled       bool
	ReceiptSno           string
	ReceiptTax           string
	ReceiptPaymentMethod string
	ReceiptPaymentObject string
	StoreName            string
}

// RateLimitConfig throttles the public checkout endpoints per client IP.
// It only applies when Redis is configured.
type RateLimitConfig struct {
	Enabled      bool
	Rate         float64
	Burst        int
	PromoLockTTL time.Duration
}

type PromoConfig struct {
	Enabled bool
}

type PasswordPolicy string

const (
	// PasswordPolicyNewUsers generates a temporary password only for users
	// created during provisioning.
	PasswordPolicyNewUsers PasswordPolicy = "new_users"
	// PasswordPolicyBackfill also generates one for existing users that have
	// no password yet.
	PasswordPolicyBackfill PasswordPolicy = "backfill"
)

type AccessConfig struct {
	PasswordPolicy PasswordPolicy
	MagicLinkPath  string
	SessionTTL     time.Duration
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// Load loads configuration from environment variables and .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	algorithm, err := signature.ParseAlgorithm(getenv("GATEWAY_HASH_ALGORITHM", string(signature.MD5)))
	if err != nil {
		return Config{}, fmt.Errorf("GATEWAY_HASH_ALGORITHM: %w", err)
	}

	policy, err := parsePasswordPolicy(getenv("ACCESS_PASSWORD_POLICY", string(PasswordPolicyNewUsers)))
	if err != nil {
		return Config{}, err
	}

	baseURL := strings.TrimRight(strings.TrimSpace(getenv("BASE_URL", "http://localhost:8080")), "/")

	cfg := Config{
		AppName:          getenv("APP_SERVICE", "coursepay"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		BaseURL:          baseURL,
		AuthCookieSecure: authCookieSecure,

		LogLevel:     strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:    strings.ToLower(getenv("LOG_FORMAT", "json")),
		OTLPEndpoint: strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")),
		OTLPProtocol: strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "coursepay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		DBMetricsEnabled:  getenvBool("DATABASE_METRICS_ENABLED", true),
		DBTracingEnabled:  getenvBool("DATABASE_TRACING_ENABLED", false),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		RateLimit: RateLimitConfig{
			Enabled:      getenvBool("RATE_LIMIT_ENABLED", true),
			Rate:         getenvFloat("RATE_LIMIT_RATE", 1),
			Burst:        getenvInt("RATE_LIMIT_BURST", 10),
			PromoLockTTL: getenvDuration("PROMO_LOCK_TTL", 5*time.Second),
		},

		CatalogPath: getenv("CATALOG_PATH", ""),

		Gateway: GatewayConfig{
			Endpoint:      getenv("GATEWAY_ENDPOINT", "https://auth.robokassa.ru/Merchant/Index.aspx"),
			MerchantLogin: strings.TrimSpace(getenv("GATEWAY_MERCHANT_LOGIN", "")),
			Password1:     strings.TrimSpace(getenv("GATEWAY_PASSWORD_1", "")),
			Password2:     strings.TrimSpace(getenv("GATEWAY_PASSWORD_2", "")),
			Algorithm:     algorithm,
			TestMode:      getenvBool("GATEWAY_TEST_MODE", environment != "production"),
			Description:   getenv("GATEWAY_DESCRIPTION", "Course access"),
			Culture:       getenv("GATEWAY_CULTURE", "ru"),
			Encoding:      getenv("GATEWAY_ENCODING", "utf-8"),
			SuccessURL:    getenv("GATEWAY_SUCCESS_URL", baseURL+"/payment/success"),
			FailURL:       getenv("GATEWAY_FAIL_URL", baseURL+"/payment/fail"),

			ReceiptEnabled:       getenvBool("GATEWAY_RECEIPT_ENABLED", true),
			ReceiptSno:           getenv("GATEWAY_RECEIPT_SNO", "usn_income"),
			ReceiptTax:           getenv("GATEWAY_RECEIPT_TAX", "none"),
			ReceiptPaymentMethod: getenv("GATEWAY_RECEIPT_PAYMENT_METHOD", "full_payment"),
			ReceiptPaymentObject: getenv("GATEWAY_RECEIPT_PAYMENT_OBJECT", "service"),
			StoreName:            getenv("GATEWAY_STORE_NAME", "Online course"),
		},
		Promo: PromoConfig{
			Enabled: getenvBool("PROMO_ENABLED", true),
		},
		Access: AccessConfig{
			PasswordPolicy: policy,
			MagicLinkPath:  getenv("ACCESS_MAGIC_LINK_PATH", "/auth/magic"),
			SessionTTL:     getenvDuration("ACCESS_SESSION_TTL", 30*24*time.Hour),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "no-reply@localhost"),
		},
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func parsePasswordPolicy(raw string) (PasswordPolicy, error) {
	switch PasswordPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case PasswordPolicyNewUsers:
		return PasswordPolicyNewUsers, nil
	case PasswordPolicyBackfill:
		return PasswordPolicyBackfill, nil
	default:
		return "", fmt.Errorf("ACCESS_PASSWORD_POLICY: unsupported value %q", raw)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
