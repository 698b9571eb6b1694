package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gregtusar/synthlong/pkg/secrets"
	"github.com/gregtusar/synthlong/pkg/strategy"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var DefaultTickers = []string{"AAPL", "MSFT", "GOOGL", "META"}

type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`
	Strategy StrategyConfig `mapstructure:"strategy" yaml:"strategy"`
	Screener ScreenerConfig `mapstructure:"screener" yaml:"screener"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	GCP      GCPConfig      `mapstructure:"gcp" yaml:"gcp"`
}

type ServerConfig struct {
	Port          int    `mapstructure:"port" yaml:"port"`
	AllowedOrigin string `mapstructure:"allowed_origin" yaml:"allowed_origin"`
	JWTSecret     string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

type ProviderConfig struct {
	Name                string        `mapstructure:"name" yaml:"name"`
	Tradier             TradierConfig `mapstructure:"tradier" yaml:"tradier"`
	Alpaca              AlpacaConfig  `mapstructure:"alpaca" yaml:"alpaca"`
	RateLimit           float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst               int           `mapstructure:"burst" yaml:"burst"`
	TheoreticalFallback bool          `mapstructure:"theoretical_fallback" yaml:"theoretical_fallback"`
	// Record stores every provider response in the snapshot database.
	Record bool `mapstructure:"record" yaml:"record"`
}

type TradierConfig struct {
	Token   string `mapstructure:"token" yaml:"token"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

type AlpacaConfig struct {
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	APISecret  string `mapstructure:"api_secret" yaml:"api_secret"`
	DataURL    string `mapstructure:"data_url" yaml:"data_url"`
	TradingURL string `mapstructure:"trading_url" yaml:"trading_url"`
	Feed       string `mapstructure:"feed" yaml:"feed"`
}

type StrategyConfig struct {
	PutStrikePct       float64   `mapstructure:"put_strike_pct" yaml:"put_strike_pct"`
	CallStrikePct      float64   `mapstructure:"call_strike_pct" yaml:"call_strike_pct"`
	PutStrikeVariation []float64 `mapstructure:"put_strike_variation" yaml:"put_strike_variation"`
	MinDays            int       `mapstructure:"min_days" yaml:"min_days"`
	MaxDays            int       `mapstructure:"max_days" yaml:"max_days"`
	ExpiryStep         int       `mapstructure:"expiry_step" yaml:"expiry_step"`
	CallToPutRatio     []int     `mapstructure:"call_to_put_ratio" yaml:"call_to_put_ratio"`
	ContractSize       int       `mapstructure:"contract_size" yaml:"contract_size"`
	RiskFreeRate       float64   `mapstructure:"risk_free_rate" yaml:"risk_free_rate"`
	MinVolatility      *float64  `mapstructure:"min_volatility" yaml:"min_volatility,omitempty"`
	MaxVolatility      *float64  `mapstructure:"max_volatility" yaml:"max_volatility,omitempty"`
}

type ScreenerConfig struct {
	Tickers      []string     `mapstructure:"tickers" yaml:"tickers"`
	Mode         string       `mapstructure:"mode" yaml:"mode"`
	Top          int          `mapstructure:"top" yaml:"top"`
	OutputDir    string       `mapstructure:"output_dir" yaml:"output_dir"`
	ScheduleTime string       `mapstructure:"schedule_time" yaml:"schedule_time"`
	Timezone     string       `mapstructure:"timezone" yaml:"timezone"`
	Sheets       SheetsConfig `mapstructure:"sheets" yaml:"sheets"`
}

type SheetsConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json" yaml:"-"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

type GCPConfig struct {
	ProjectID   string              `mapstructure:"project_id" yaml:"project_id"`
	UseSecrets  bool                `mapstructure:"use_secrets" yaml:"use_secrets"`
	SecretNames secrets.SecretNames `mapstructure:"secret_names" yaml:"secret_names"`
}

func Load(configPath string) (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/synthlong")
	}

	v.SetEnvPrefix("SYNTHLONG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		ctx := context.Background()
		logger := logrus.New()
		secretManager, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, logger)
		if err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
		defer secretManager.Close()

		loadSecrets(ctx, &config, secretManager)
		logger.Info("Successfully loaded secrets from GCP Secret Manager")
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origin", "*")
	v.SetDefault("server.jwt_secret", "")

	v.SetDefault("provider.name", "tradier")
	v.SetDefault("provider.tradier.token", "")
	v.SetDefault("provider.tradier.base_url", "https://api.tradier.com")
	v.SetDefault("provider.alpaca.api_key", "")
	v.SetDefault("provider.alpaca.api_secret", "")
	v.SetDefault("provider.alpaca.data_url", "https://data.alpaca.markets")
	v.SetDefault("provider.alpaca.trading_url", "https://paper-api.alpaca.markets")
	v.SetDefault("provider.alpaca.feed", "indicative")
	v.SetDefault("provider.rate_limit", 2.0)
	v.SetDefault("provider.burst", 4)
	v.SetDefault("provider.theoretical_fallback", false)
	v.SetDefault("provider.record", false)

	defaults := strategy.DefaultParameters()
	v.SetDefault("strategy.put_strike_pct", defaults.PutStrikePct)
	v.SetDefault("strategy.call_strike_pct", defaults.CallStrikePct)
	v.SetDefault("strategy.put_strike_variation", defaults.PutStrikeVariation)
	v.SetDefault("strategy.min_days", defaults.MinDays)
	v.SetDefault("strategy.max_days", defaults.MaxDays)
	v.SetDefault("strategy.expiry_step", defaults.ExpiryStep)
	v.SetDefault("strategy.call_to_put_ratio", []int{defaults.CallContracts, defaults.PutContracts})
	v.SetDefault("strategy.contract_size", defaults.ContractSize)
	v.SetDefault("strategy.risk_free_rate", defaults.RiskFreeRate)

	v.SetDefault("screener.tickers", DefaultTickers)
	v.SetDefault("screener.mode", "automatic")
	v.SetDefault("screener.top", 3)
	v.SetDefault("screener.output_dir", "reports")
	v.SetDefault("screener.schedule_time", "")
	v.SetDefault("screener.timezone", "Asia/Dubai")
	v.SetDefault("screener.sheets.enabled", false)
	v.SetDefault("screener.sheets.credentials_file", "")

	v.SetDefault("database.path", "./data/synthlong.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)

	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")

	secretNames := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.tradier_token", secretNames.TradierToken)
	v.SetDefault("gcp.secret_names.alpaca_api_key", secretNames.AlpacaAPIKey)
	v.SetDefault("gcp.secret_names.alpaca_api_secret", secretNames.AlpacaAPISecret)
	v.SetDefault("gcp.secret_names.jwt_secret", secretNames.JWTSecret)
	v.SetDefault("gcp.secret_names.sheets_credentials", secretNames.SheetsCredentials)
}

func overrideFromEnv(config *Config) {
	if token := os.Getenv("TRADIER_TOKEN"); token != "" {
		config.Provider.Tradier.Token = token
	}
	if apiKey := os.Getenv("ALPACA_API_KEY"); apiKey != "" {
		config.Provider.Alpaca.APIKey = apiKey
	}
	if apiSecret := os.Getenv("ALPACA_API_SECRET"); apiSecret != "" {
		config.Provider.Alpaca.APISecret = apiSecret
	}
	if secret := os.Getenv("SYNTHLONG_JWT_SECRET"); secret != "" {
		config.Server.JWTSecret = secret
	}

	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets := os.Getenv("GCP_USE_SECRETS"); useSecrets == "true" {
		config.GCP.UseSecrets = true
	}
}

// loadSecrets fills credentials that are still empty after file and
// environment loading.
func loadSecrets(ctx context.Context, config *Config, source secrets.Source) {
	names := config.GCP.SecretNames
	fill := func(target *string, name string) {
		if *target == "" {
			*target = source.GetSecretWithDefault(ctx, name, "")
		}
	}

	fill(&config.Provider.Tradier.Token, names.TradierToken)
	fill(&config.Provider.Alpaca.APIKey, names.AlpacaAPIKey)
	fill(&config.Provider.Alpaca.APISecret, names.AlpacaAPISecret)
	fill(&config.Server.JWTSecret, names.JWTSecret)
	if config.Screener.Sheets.Enabled && config.Screener.Sheets.CredentialsFile == "" {
		fill(&config.Screener.Sheets.CredentialsJSON, names.SheetsCredentials)
	}
}

// StrategyParameters converts the strategy section into validated engine
// parameters.
func (c *Config) StrategyParameters() (strategy.Parameters, error) {
	s := c.Strategy
	if len(s.CallToPutRatio) != 2 {
		return strategy.Parameters{}, fmt.Errorf("%w: call_to_put_ratio must have two entries, got %v",
			strategy.ErrInvalidParameters, s.CallToPutRatio)
	}

	params := strategy.Parameters{
		PutStrikePct:       s.PutStrikePct,
		CallStrikePct:      s.CallStrikePct,
		PutStrikeVariation: append([]float64(nil), s.PutStrikeVariation...),
		MinDays:            s.MinDays,
		MaxDays:            s.MaxDays,
		ExpiryStep:         s.ExpiryStep,
		CallContracts:      s.CallToPutRatio[0],
		PutContracts:       s.CallToPutRatio[1],
		ContractSize:       s.ContractSize,
		RiskFreeRate:       s.RiskFreeRate,
		MinVolatility:      s.MinVolatility,
		MaxVolatility:      s.MaxVolatility,
	}
	if err := params.Validate(); err != nil {
		return strategy.Parameters{}, err
	}
	return params, nil
}

// Tickers returns the configured tickers upper-cased, trimmed and
// de-duplicated in their original order.
func (c *Config) Tickers() []string {
	return NormalizeTickers(c.Screener.Tickers)
}

func NormalizeTickers(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		for _, part := range strings.Split(t, ",") {
			norm := strings.ToUpper(strings.TrimSpace(part))
			if norm == "" || seen[norm] {
				continue
			}
			seen[norm] = true
			out = append(out, norm)
		}
	}
	return out
}

// Default returns the configuration produced by defaults alone.
func Default() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling defaults: %w", err)
	}
	return &config, nil
}

// WriteDefault writes the default configuration as YAML. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	config, err := Default()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
