package common

import (
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joseph-ayodele/invoice-attestor/constants"
)

// Config holds all application configuration. It is loaded once at startup
// and handed to adapters at construction.
type Config struct {
	LogLevel slog.Level
	Database DatabaseConfig
	Server   ServerConfig
	Document DocumentConfig
	Extract  ExtractConfig
	Submit   SubmitConfig
}

// DatabaseConfig holds attestation journal configuration
type DatabaseConfig struct {
	Driver           string // "sqlite" or "postgres"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr   string
	GRPCAddr   string
	SessionTTL time.Duration
}

type DocumentConfig struct {
	MaxMB int
}

// ExtractConfig selects and configures the vision model.
type ExtractConfig struct {
	Provider    string // "openai" or "gemini"
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
	GCPProject  string
	GCPRegion   string
}

// SubmitConfig selects exactly one submission backend.
type SubmitConfig struct {
	Backend string // "evm", "pinata", "gcs" or "s3"
	Timeout time.Duration
	EVM     EVMConfig
	Pinata  PinataConfig
	GCS     GCSConfig
	S3      S3Config
}

type EVMConfig struct {
	RPCURL          string
	From            string
	Contract        string
	MinBalanceWei   string
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
	ExplorerURLTmpl string // "%s" is replaced by the tx hash
}

type PinataConfig struct {
	JWT     string
	BaseURL string
}

type GCSConfig struct {
	Bucket string
	Prefix string
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_URL", "file:attestations.db?_pragma=busy_timeout(5000)")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_MAX_CONN_LIFETIME", 30*time.Minute)
	v.SetDefault("DB_MAX_CONN_IDLE_TIME", 5*time.Minute)
	v.SetDefault("DB_DIAL_TIMEOUT", 3*time.Second)
	v.SetDefault("DB_STATEMENT_TIMEOUT", time.Duration(0))

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("SESSION_TTL", time.Hour)

	v.SetDefault("MAX_DOCUMENT_MB", constants.MaxDocumentMB)

	v.SetDefault("EXTRACT_PROVIDER", "openai")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("OPENAI_TEMPERATURE", 0.0)
	v.SetDefault("EXTRACT_TIMEOUT", 60*time.Second)
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	v.SetDefault("GCP_REGION", "us-central1")

	v.SetDefault("SUBMIT_BACKEND", "evm")
	v.SetDefault("SUBMIT_TIMEOUT", 30*time.Second)
	v.SetDefault("EVM_MIN_BALANCE_WEI", "0")
	v.SetDefault("EVM_CONFIRM_TIMEOUT", 2*time.Minute)
	v.SetDefault("EVM_POLL_INTERVAL", 2*time.Second)
	v.SetDefault("EVM_EXPLORER_URL", "https://www.oklink.com/amoy/tx/%s")
	v.SetDefault("PINATA_BASE_URL", "https://api.pinata.cloud")
	v.SetDefault("GCS_PREFIX", "attestations")
	v.SetDefault("S3_PREFIX", "attestations")
	v.SetDefault("S3_USE_SSL", true)
}

// LoadConfig reads configuration from the environment, optionally layered
// over an env-format file at path. Environment variables take precedence.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "read config file "+path, err)
		}
	}

	extract := ExtractConfig{
		Provider:    strings.ToLower(v.GetString("EXTRACT_PROVIDER")),
		Timeout:     v.GetDuration("EXTRACT_TIMEOUT"),
		Temperature: float32(v.GetFloat64("OPENAI_TEMPERATURE")),
		GCPProject:  v.GetString("GCP_PROJECT"),
		GCPRegion:   v.GetString("GCP_REGION"),
	}
	switch extract.Provider {
	case "gemini":
		extract.Model = v.GetString("GEMINI_MODEL")
	default:
		extract.Model = v.GetString("OPENAI_MODEL")
		extract.APIKey = v.GetString("OPENAI_API_KEY")
		extract.BaseURL = v.GetString("OPENAI_BASE_URL")
	}

	cfg := &Config{
		LogLevel: logLevels[strings.ToLower(v.GetString("LOG_LEVEL"))],
		Database: DatabaseConfig{
			Driver:           strings.ToLower(v.GetString("DB_DRIVER")),
			DSN:              v.GetString("DB_URL"),
			MaxConns:         v.GetInt32("DB_MAX_CONNS"),
			MinConns:         v.GetInt32("DB_MIN_CONNS"),
			MaxConnLifetime:  v.GetDuration("DB_MAX_CONN_LIFETIME"),
			MaxConnIdleTime:  v.GetDuration("DB_MAX_CONN_IDLE_TIME"),
			DialTimeout:      v.GetDuration("DB_DIAL_TIMEOUT"),
			StatementTimeout: v.GetDuration("DB_STATEMENT_TIMEOUT"),
		},
		Server: ServerConfig{
			HTTPAddr:   v.GetString("HTTP_ADDR"),
			GRPCAddr:   v.GetString("GRPC_ADDR"),
			SessionTTL: v.GetDuration("SESSION_TTL"),
		},
		Document: DocumentConfig{
			MaxMB: v.GetInt("MAX_DOCUMENT_MB"),
		},
		Extract: extract,
		Submit: SubmitConfig{
			Backend: strings.ToLower(v.GetString("SUBMIT_BACKEND")),
			Timeout: v.GetDuration("SUBMIT_TIMEOUT"),
			EVM: EVMConfig{
				RPCURL:          v.GetString("EVM_RPC_URL"),
				From:            v.GetString("EVM_FROM"),
				Contract:        v.GetString("EVM_CONTRACT"),
				MinBalanceWei:   v.GetString("EVM_MIN_BALANCE_WEI"),
				ConfirmTimeout:  v.GetDuration("EVM_CONFIRM_TIMEOUT"),
				PollInterval:    v.GetDuration("EVM_POLL_INTERVAL"),
				ExplorerURLTmpl: v.GetString("EVM_EXPLORER_URL"),
			},
			Pinata: PinataConfig{
				JWT:     v.GetString("PINATA_JWT"),
				BaseURL: v.GetString("PINATA_BASE_URL"),
			},
			GCS: GCSConfig{
				Bucket: v.GetString("GCS_BUCKET"),
				Prefix: v.GetString("GCS_PREFIX"),
			},
			S3: S3Config{
				Endpoint:  v.GetString("S3_ENDPOINT"),
				AccessKey: v.GetString("S3_ACCESS_KEY"),
				SecretKey: v.GetString("S3_SECRET_KEY"),
				Bucket:    v.GetString("S3_BUCKET"),
				Prefix:    v.GetString("S3_PREFIX"),
				UseSSL:    v.GetBool("S3_USE_SSL"),
			},
		},
	}
	return cfg, nil
}

// Validate checks the loaded configuration for the selected backends.
func (c *Config) Validate() error {
	val := NewValidator()
	val.Field("DB_URL", c.Database.DSN, Required)
	val.Field("DB_DRIVER", c.Database.Driver, OneOf("sqlite", "postgres"))
	val.Field("EXTRACT_PROVIDER", c.Extract.Provider, OneOf("openai", "gemini"))
	val.Field("SUBMIT_BACKEND", c.Submit.Backend, OneOf("evm", "pinata", "gcs", "s3"))
	if c.Document.MaxMB <= 0 {
		val.Field("MAX_DOCUMENT_MB", c.Document.MaxMB, func(f string, v interface{}) *ValidationError {
			return &ValidationError{Field: f, Value: v, Message: "must be positive"}
		})
	}

	switch c.Extract.Provider {
	case "openai":
		val.Field("OPENAI_API_KEY", c.Extract.APIKey, Required)
	case "gemini":
		val.Field("GCP_PROJECT", c.Extract.GCPProject, Required)
	}

	switch c.Submit.Backend {
	case "evm":
		val.Field("EVM_RPC_URL", c.Submit.EVM.RPCURL, Required)
		val.Field("EVM_FROM", c.Submit.EVM.From, Required, HexAddress)
		val.Field("EVM_CONTRACT", c.Submit.EVM.Contract, Required, HexAddress)
		if _, ok := new(big.Int).SetString(c.Submit.EVM.MinBalanceWei, 10); !ok {
			val.Field("EVM_MIN_BALANCE_WEI", c.Submit.EVM.MinBalanceWei, func(f string, v interface{}) *ValidationError {
				return &ValidationError{Field: f, Value: v, Message: "must be a base-10 integer"}
			})
		}
	case "pinata":
		val.Field("PINATA_JWT", c.Submit.Pinata.JWT, Required)
	case "gcs":
		val.Field("GCS_BUCKET", c.Submit.GCS.Bucket, Required)
	case "s3":
		val.Field("S3_ENDPOINT", c.Submit.S3.Endpoint, Required)
		val.Field("S3_BUCKET", c.Submit.S3.Bucket, Required)
	}

	if val.HasErrors() {
		return NewAppError("CONFIG_ERROR", val.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}

// String renders a config summary without secrets.
func (c *Config) String() string {
	return fmt.Sprintf("db=%s extract=%s/%s submit=%s http=%s grpc=%s",
		c.Database.Driver, c.Extract.Provider, c.Extract.Model, c.Submit.Backend,
		c.Server.HTTPAddr, c.Server.GRPCAddr)
}
