package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/imagify/internal/gateway"
	"github.com/and161185/imagify/internal/model"
	"github.com/and161185/imagify/internal/plans"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	RunAddress  string        `yaml:"run_address"`
	DatabaseURI string        `yaml:"database_uri"`
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	FrontendURL string        `yaml:"frontend_url"`
	BackendURL  string        `yaml:"backend_url"`
	LogOutputs  []string      `yaml:"log_outputs"`

	Gateway   GatewayConfig   `yaml:"gateway"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Plans     []model.Plan    `yaml:"plans"`
}

type GatewayConfig struct {
	Env             string        `yaml:"env"`
	BaseURL         string        `yaml:"base_url"`
	AppID           string        `yaml:"app_id"`
	SecretKey       string        `yaml:"secret_key"`
	Timeout         time.Duration `yaml:"timeout"`
	Currency        string        `yaml:"currency"`
	VerifySignature bool          `yaml:"verify_signature"`
}

type ReconcileConfig struct {
	Interval     time.Duration `yaml:"interval"`
	Workers      int           `yaml:"workers"`
	StaleAfter   time.Duration `yaml:"stale_after"`
	RecheckAfter time.Duration `yaml:"recheck_after"`
	Lookback     time.Duration `yaml:"lookback"`
	BatchSize    int           `yaml:"batch_size"`
}

func Default() *Config {
	return &Config{
		RunAddress:  "localhost:8080",
		TokenTTL:    7 * 24 * time.Hour,
		FrontendURL: "http://localhost:5173",
		BackendURL:  "http://localhost:8080",
		LogOutputs:  []string{"stdout", "server.log"},
		Gateway: GatewayConfig{
			Env:      "SANDBOX",
			Timeout:  10 * time.Second,
			Currency: "INR",
		},
		Reconcile: ReconcileConfig{
			Interval:     30 * time.Second,
			Workers:      5,
			StaleAfter:   time.Minute,
			RecheckAfter: 5 * time.Minute,
			Lookback:     24 * time.Hour,
			BatchSize:    100,
		},
	}
}

// NewConfig builds the configuration from the process arguments and
// environment.
func NewConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load applies, in order of increasing priority: defaults, the YAML file,
// command-line flags and environment variables. A .env file in the working
// directory is loaded into the environment first when present.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var (
		configPath  string
		runAddress  string
		databaseURI string
	)
	flags := flag.NewFlagSet("imagify", flag.ContinueOnError)
	flags.StringVar(&configPath, "c", os.Getenv("CONFIG_PATH"), "YAML config file")
	flags.StringVar(&runAddress, "a", "", "HTTP server address")
	flags.StringVar(&databaseURI, "d", "", "DB connection string")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if configPath != "" {
		if err := cfg.readFile(configPath); err != nil {
			return nil, err
		}
	}

	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "a":
			cfg.RunAddress = runAddress
		case "d":
			cfg.DatabaseURI = databaseURI
		}
	})

	if err := ReadServerEnvironment(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func ReadServerEnvironment(cfg *Config) error {
	if runAddress := os.Getenv("RUN_ADDRESS"); runAddress != "" {
		cfg.RunAddress = runAddress
	}

	if databaseURI := os.Getenv("DATABASE_URI"); databaseURI != "" {
		cfg.DatabaseURI = databaseURI
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWTSecret = secret
	}

	if v := os.Getenv("FRONTEND_URL"); v != "" {
		cfg.FrontendURL = v
	}

	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}

	if v := os.Getenv("CASHFREE_APP_ID"); v != "" {
		cfg.Gateway.AppID = v
	}

	if v := os.Getenv("CASHFREE_SECRET_KEY"); v != "" {
		cfg.Gateway.SecretKey = v
	}

	if v := os.Getenv("CASHFREE_ENV"); v != "" {
		cfg.Gateway.Env = v
	}

	if v := os.Getenv("CASHFREE_BASE_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}

	if v := os.Getenv("GATEWAY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GATEWAY_TIMEOUT: %w", err)
		}
		cfg.Gateway.Timeout = d
	}

	if v := os.Getenv("VERIFY_WEBHOOK_SIGNATURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("VERIFY_WEBHOOK_SIGNATURE: %w", err)
		}
		cfg.Gateway.VerifySignature = b
	}

	if v := os.Getenv("RECONCILE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("RECONCILE_INTERVAL: %w", err)
		}
		cfg.Reconcile.Interval = d
	}

	if v := os.Getenv("RECONCILE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RECONCILE_WORKERS: %w", err)
		}
		cfg.Reconcile.Workers = n
	}

	if v := os.Getenv("RECONCILE_RECHECK_AFTER"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("RECONCILE_RECHECK_AFTER: %w", err)
		}
		cfg.Reconcile.RecheckAfter = d
	}

	return nil
}

// Validate checks what the server needs before it can start.
func (cfg *Config) Validate() error {
	var problems []string
	if cfg.DatabaseURI == "" {
		problems = append(problems, "database uri is required")
	}
	if cfg.JWTSecret == "" {
		problems = append(problems, "jwt secret is required")
	}
	if cfg.Gateway.AppID == "" || cfg.Gateway.SecretKey == "" {
		problems = append(problems, "gateway app id and secret key are required")
	}
	if cfg.Reconcile.Interval < 0 {
		problems = append(problems, "reconcile interval must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// GatewayBaseURL resolves the gateway endpoint. An explicit base URL wins;
// otherwise the environment selects production or sandbox.
func (cfg *Config) GatewayBaseURL() string {
	if cfg.Gateway.BaseURL != "" {
		return cfg.Gateway.BaseURL
	}
	if strings.EqualFold(cfg.Gateway.Env, "PRODUCTION") {
		return gateway.ProductionURL
	}
	return gateway.SandboxURL
}

func (cfg *Config) Catalog() (*plans.Catalog, error) {
	if len(cfg.Plans) == 0 {
		return plans.New(plans.Defaults())
	}
	return plans.New(cfg.Plans)
}
