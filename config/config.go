package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"tradeledger/internal/adapters/logger"
	"tradeledger/internal/domain"
)

// Store selects the persistence backend of the ledger.
type Store string

const (
	StoreSQLite   Store = "sqlite"
	StorePostgres Store = "postgres"
	StoreMemory   Store = "memory"
)

// Config holds all application configuration.
type Config struct {
	// Persistence
	Store       Store
	DBPath      string // SQLite file
	PostgresDSN string

	// Logging
	LogLevel logger.LogLevel

	// Ledger
	Fees            domain.FeeModel
	AmountEpsilon   float64 // Remaining amount treated as fully exited
	DefaultLeverage float64 // Applied to imported fills that carry none
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// A missing .env is fine; plain environment variables still apply.
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string

	// Persistence
	cfg.Store = Store(strings.ToLower(getEnv("LEDGER_STORE", string(StoreSQLite))))
	switch cfg.Store {
	case StoreSQLite, StorePostgres, StoreMemory:
	default:
		errs = append(errs, fmt.Sprintf("LEDGER_STORE must be one of sqlite, postgres, memory (got %q)", cfg.Store))
	}

	cfg.DBPath = getEnv("DB_PATH", "./data/ledger.db")
	cfg.PostgresDSN = getEnv("POSTGRES_DSN", "")
	if cfg.Store == StorePostgres && cfg.PostgresDSN == "" {
		errs = append(errs, "POSTGRES_DSN must be set when LEDGER_STORE=postgres")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	// Fees
	cfg.Fees.Kind, err = domain.ParseFeeKind(getEnv("FEE_MODEL", string(domain.FeePercentage)))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FEE_MODEL: %v", err))
	}
	cfg.Fees.Rate, err = getEnvAsFloatRequired("FEE_RATE", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FEE_RATE: %v", err))
	}
	cfg.Fees.Flat, err = getEnvAsFloatRequired("FEE_FLAT", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FEE_FLAT: %v", err))
	}
	if len(errs) == 0 {
		if err := cfg.Fees.Validate(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	cfg.AmountEpsilon, err = getEnvAsFloatRequired("AMOUNT_EPSILON", 1e-8)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid AMOUNT_EPSILON: %v", err))
	} else if cfg.AmountEpsilon <= 0 {
		errs = append(errs, "AMOUNT_EPSILON must be positive")
	}

	cfg.DefaultLeverage, err = getEnvAsFloatRequired("DEFAULT_LEVERAGE", 1.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_LEVERAGE: %v", err))
	} else if cfg.DefaultLeverage < 1 {
		errs = append(errs, "DEFAULT_LEVERAGE must be at least 1")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
