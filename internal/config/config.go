package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Ledger    LedgerConfig
	Audit     AuditConfig
	Payout    PayoutConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port          string
	Env           string
	StorageDriver string // postgres | memory
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

type LedgerConfig struct {
	Currency              string
	PlatformOwnerID       string
	WithholdingOwnerID    string
	EscrowOwnerID         string
	PlatformFeePercent    decimal.Decimal
	DefaultEORFeePercent  decimal.Decimal
	ClearingPeriod        time.Duration
	InstantFeePercent     decimal.Decimal
	InstantMinFee         decimal.Decimal
	CryptoFlatFee         decimal.Decimal
	AutoWithdrawalWeekday time.Weekday
	FeeRuleCacheTTL       time.Duration
	IdempotencyTTL        time.Duration
	SagaResumeAfter       time.Duration
	DefaultTaxRates       map[string]decimal.Decimal

	// EscrowApprovalThreshold is the hold amount above which a release
	// needs a second approver. Zero turns the gate off.
	EscrowApprovalThreshold decimal.Decimal
}

type AuditConfig struct {
	ServiceName string
	Secret      string
}

type PayoutConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type SchedulerConfig struct {
	Enabled             bool
	AutoWithdrawalSpec  string
	PayrollSpec         string
	SubscriptionSpec    string
	PendingClearingSpec string
	SagaRecoverySpec    string
	LockTTL             time.Duration
}

func Load(logger *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", zap.Error(err))
	}

	weekday, err := parseWeekday(getEnv("AUTO_WITHDRAWAL_WEEKDAY", "MONDAY"))
	if err != nil {
		return nil, err
	}
	taxRates, err := parseRates(getEnv("DEFAULT_TAX_RATES", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:          getEnv("SERVER_PORT", "8030"),
			Env:           getEnv("ENVIRONMENT", "development"),
			StorageDriver: getEnv("STORAGE_DRIVER", "postgres"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "ledger"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 50)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 10)),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(getEnv("KAFKA_BROKERS", "")),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "audit.events"),
		},
		Ledger: LedgerConfig{
			Currency:              getEnv("LEDGER_CURRENCY", "USD"),
			PlatformOwnerID:       getEnv("PLATFORM_WALLET_OWNER", "PLATFORM-TREASURY"),
			WithholdingOwnerID:    getEnv("WITHHOLDING_WALLET_OWNER", "PLATFORM-WITHHOLDING"),
			EscrowOwnerID:         getEnv("ESCROW_WALLET_OWNER", "PLATFORM-ESCROW"),
			PlatformFeePercent:    getEnvDecimal("PLATFORM_FEE_PERCENT", "10"),
			DefaultEORFeePercent:  getEnvDecimal("EOR_FEE_PERCENT", "5"),
			ClearingPeriod:        getEnvDuration("TRANSFER_CLEARING_PERIOD", 120*time.Hour),
			InstantFeePercent:     getEnvDecimal("INSTANT_WITHDRAW_FEE_PERCENT", "1.5"),
			InstantMinFee:         getEnvDecimal("INSTANT_WITHDRAW_MIN_FEE", "2.00"),
			CryptoFlatFee:         getEnvDecimal("CRYPTO_WITHDRAW_FEE", "1.00"),
			AutoWithdrawalWeekday: weekday,
			FeeRuleCacheTTL:       getEnvDuration("FEE_RULE_CACHE_TTL", 30*time.Minute),
			IdempotencyTTL:        getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
			SagaResumeAfter:       getEnvDuration("SAGA_RESUME_AFTER", 30*time.Second),
			DefaultTaxRates:       taxRates,

			EscrowApprovalThreshold: getEnvDecimal("ESCROW_APPROVAL_THRESHOLD", "5000"),
		},
		Audit: AuditConfig{
			ServiceName: getEnv("AUDIT_SERVICE_NAME", "payment-service"),
			Secret:      getEnv("AUDIT_INTEGRITY_SECRET", ""),
		},
		Payout: PayoutConfig{
			BaseURL: getEnv("PAYOUT_BASE_URL", ""),
			APIKey:  getEnv("PAYOUT_API_KEY", ""),
			Timeout: getEnvDuration("PAYOUT_TIMEOUT", 15*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:             getEnvBool("SCHEDULER_ENABLED", true),
			AutoWithdrawalSpec:  getEnv("CRON_AUTO_WITHDRAWAL", "0 2 * * *"),
			PayrollSpec:         getEnv("CRON_PAYROLL", "0 3 * * *"),
			SubscriptionSpec:    getEnv("CRON_SUBSCRIPTIONS", "0 0 * * *"),
			PendingClearingSpec: getEnv("CRON_PENDING_CLEARING", "*/15 * * * *"),
			SagaRecoverySpec:    getEnv("CRON_SAGA_RECOVERY", "*/5 * * * *"),
			LockTTL:             getEnvDuration("JOB_LOCK_TTL", 30*time.Minute),
		},
	}

	if cfg.Audit.Secret == "" {
		if cfg.Server.Env == "production" {
			return nil, fmt.Errorf("AUDIT_INTEGRITY_SECRET is required in production")
		}
		logger.Warn("AUDIT_INTEGRITY_SECRET not set, using development secret")
		cfg.Audit.Secret = "dev-integrity-secret"
	}

	if cfg.Ledger.PlatformFeePercent.IsNegative() || cfg.Ledger.PlatformFeePercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("PLATFORM_FEE_PERCENT must be within 0..100")
	}

	switch cfg.Server.StorageDriver {
	case "postgres", "memory":
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.Server.StorageDriver)
	}

	return cfg, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d, nil
		}
	}
	return time.Monday, fmt.Errorf("invalid AUTO_WITHDRAWAL_WEEKDAY %q", s)
}

// parseRates reads "US=10,GB=20" into percent rates per jurisdiction.
func parseRates(s string) (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal)
	for _, pair := range splitList(s) {
		code, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid DEFAULT_TAX_RATES entry %q", pair)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid DEFAULT_TAX_RATES rate %q: %w", pair, err)
		}
		rates[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	return rates, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key, defaultValue string) decimal.Decimal {
	if d, err := decimal.NewFromString(getEnv(key, defaultValue)); err == nil {
		return d
	}
	return decimal.RequireFromString(defaultValue)
}
