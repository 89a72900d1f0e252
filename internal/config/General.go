package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// LogLevel is the zerolog level name (debug, info, warn, error).
	LogLevel string
	// WebPort is the port the HTTP API listens on.
	WebPort string

	// DBHost enables persistence when set. The service runs without a database otherwise.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// MetricsCacheTTL is how long a protocol snapshot is served before a background refresh is triggered.
	MetricsCacheTTL time.Duration
	// ProtocolFetchTimeout bounds a single protocol API request.
	ProtocolFetchTimeout time.Duration

	// RedisAddr enables the shared snapshot mirror when set.
	RedisAddr     string
	RedisPassword string
)

// Yield updater configuration. Only required by the update-yield command.
var (
	UpdaterRPCURL          string
	UpdaterPrivateKey      string
	UpdaterContractAddress string
	UpdaterChainID         int64
	UpdaterInterval        time.Duration
	UpdaterRetryBackoff    time.Duration
	UpdaterTxTimeout       time.Duration
	UpdaterMinChangeBps    int64
	UpdaterGasLimit        uint64
)

var ErrMissingUpdaterConfig = errors.New("yield updater configuration is incomplete")

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Every value has a default; persistence and the Redis mirror stay disabled unless their host is set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	WebPort = getEnvOrDefault("WEB_PORT", "8080")

	DBHost = getEnvOrDefault("DB_HOST", "")
	DBPort, err = getEnvAsIntOrDefault("DB_PORT", 5432)
	if err != nil {
		return err
	}
	DBUser = getEnvOrDefault("DB_USER", "")
	DBPassword = getEnvOrDefault("DB_PASSWORD", "")
	DBName = getEnvOrDefault("DB_NAME", "")
	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	MetricsCacheTTL, err = getEnvAsDurationOrDefault("METRICS_CACHE_TTL", 300*time.Second)
	if err != nil {
		return err
	}
	ProtocolFetchTimeout, err = getEnvAsDurationOrDefault("PROTOCOL_FETCH_TIMEOUT", 10*time.Second)
	if err != nil {
		return err
	}

	RedisAddr = getEnvOrDefault("REDIS_ADDR", "")
	RedisPassword = getEnvOrDefault("REDIS_PASSWORD", "")

	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("WebPort", WebPort).
		Bool("Persistence", PersistenceEnabled()).
		Dur("MetricsCacheTTL", MetricsCacheTTL).
		Bool("RedisMirror", RedisAddr != "").
		Msg("Configuration loaded successfully.")

	return nil
}

// LoadUpdaterConfig loads the on-chain updater settings. RPC URL, private key and contract address are required.
func LoadUpdaterConfig() error {
	var err error

	UpdaterRPCURL = getEnvOrDefault("UPDATER_RPC_URL", "")
	UpdaterPrivateKey = getEnvOrDefault("UPDATER_PRIVATE_KEY", "")
	UpdaterContractAddress = getEnvOrDefault("UPDATER_CONTRACT_ADDRESS", "")

	chainID, err := getEnvAsIntOrDefault("UPDATER_CHAIN_ID", 11155111) // Sepolia
	if err != nil {
		return err
	}
	UpdaterChainID = int64(chainID)

	UpdaterInterval, err = getEnvAsDurationOrDefault("UPDATER_INTERVAL", 300*time.Second)
	if err != nil {
		return err
	}
	UpdaterRetryBackoff, err = getEnvAsDurationOrDefault("UPDATER_RETRY_BACKOFF", 60*time.Second)
	if err != nil {
		return err
	}
	UpdaterTxTimeout, err = getEnvAsDurationOrDefault("UPDATER_TX_TIMEOUT", 120*time.Second)
	if err != nil {
		return err
	}
	minChange, err := getEnvAsIntOrDefault("UPDATER_MIN_CHANGE_BPS", 100)
	if err != nil {
		return err
	}
	UpdaterMinChangeBps = int64(minChange)
	gasLimit, err := getEnvAsIntOrDefault("UPDATER_GAS_LIMIT", 200000)
	if err != nil {
		return err
	}
	UpdaterGasLimit = uint64(gasLimit)

	return ValidateUpdaterConfig()
}

// ValidateUpdaterConfig reports every problem with the updater settings at once.
func ValidateUpdaterConfig() error {
	var errs error
	if UpdaterRPCURL == "" {
		errs = multierr.Append(errs, fmt.Errorf("%w: UPDATER_RPC_URL is required", ErrMissingUpdaterConfig))
	}
	if UpdaterPrivateKey == "" {
		errs = multierr.Append(errs, fmt.Errorf("%w: UPDATER_PRIVATE_KEY is required", ErrMissingUpdaterConfig))
	}
	if !common.IsHexAddress(UpdaterContractAddress) {
		errs = multierr.Append(errs, fmt.Errorf("%w: UPDATER_CONTRACT_ADDRESS %q is not a hex address", ErrMissingUpdaterConfig, UpdaterContractAddress))
	}
	if UpdaterChainID <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("UPDATER_CHAIN_ID must be positive, got %d", UpdaterChainID))
	}
	if UpdaterInterval <= 0 || UpdaterRetryBackoff <= 0 {
		errs = multierr.Append(errs, errors.New("UPDATER_INTERVAL and UPDATER_RETRY_BACKOFF must be positive"))
	}
	if UpdaterTxTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("UPDATER_TX_TIMEOUT must be positive, got %s", UpdaterTxTimeout))
	}
	if UpdaterMinChangeBps < 0 {
		errs = multierr.Append(errs, fmt.Errorf("UPDATER_MIN_CHANGE_BPS cannot be negative, got %d", UpdaterMinChangeBps))
	}
	if UpdaterGasLimit == 0 {
		errs = multierr.Append(errs, errors.New("UPDATER_GAS_LIMIT must be positive"))
	}
	return errs
}

// PersistenceEnabled reports whether a Postgres host was configured.
func PersistenceEnabled() bool {
	return DBHost != ""
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

func getEnvOrDefault(key, fallback string) string {
	value, err := getEnv(key)
	if err != nil || value == "" {
		return fallback
	}
	return value
}

// getEnvAsIntOrDefault retrieves an environment variable as an int. Returns error if set but invalid.
func getEnvAsIntOrDefault(key string, fallback int) (int, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDurationOrDefault accepts Go durations ("90s") or plain seconds ("300").
func getEnvAsDurationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	if seconds, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return time.Duration(seconds * float64(time.Second)), nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a duration, got: " + valueStr)
	}
	return value, nil
}
