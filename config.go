package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Supported storage backends.
const (
	MemoryBackend = "memory"
	RedisBackend  = "redis"
	BoltBackend   = "bolt"
	SQLBackend    = "sql"
)

// Config defines the structure of the configuration file.
type Config struct {
	GitCommit               string        `yaml:"git_commit" envconfig:"LEND_GIT_COMMIT"`
	GitTag                  string        `yaml:"git_tag" envconfig:"LEND_GIT_TAG"`
	BuildTime               string        `yaml:"build_time" envconfig:"LEND_BUILD_TIME"`
	IsProduction            bool          `yaml:"is_production" envconfig:"LEND_IS_PRODUCTION"`
	LogLevel                zapcore.Level `yaml:"log_level" envconfig:"LEND_LOG_LEVEL"`
	LogFolder               string        `yaml:"log_folder" envconfig:"LEND_LOG_FOLDER"`
	LogMaxSize              int           `yaml:"log_max_size" envconfig:"LEND_LOG_MAX_SIZE"`
	OpsEndpointsEnable      bool          `yaml:"ops_endpoints_enable" envconfig:"LEND_OPS_ENDPOINTS_ENABLE"`
	ProfilerEndpointsEnable bool          `yaml:"profiler_endpoints_enable" envconfig:"LEND_PROFILER_ENDPOINTS_ENABLE"`
	Server                  ServerConfig  `yaml:"server"`
	Storage                 StorageConfig `yaml:"storage"`
	Auth                    AuthConfig    `yaml:"auth"`
	Journal                 JournalConfig `yaml:"journal"`
	Redis                   RedisConfig   `yaml:"redis"`
	BoltDB                  BoltDBConfig  `yaml:"boltdb"`
	SQL                     SQLConfig     `yaml:"sql"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"LEND_SERVER_HOST"`
	Port            string        `yaml:"port" envconfig:"LEND_SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"LEND_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"LEND_SERVER_WRITE_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"LEND_SERVER_REQUEST_TIMEOUT"` // Time to wait for a request to finish
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"LEND_SERVER_SHUTDOWN_TIMEOUT"`
}

type StorageConfig struct {
	Backend string `yaml:"backend" envconfig:"LEND_STORAGE_BACKEND"`
}

type AuthConfig struct {
	PasswordHasher string `yaml:"password_hasher" envconfig:"LEND_AUTH_PASSWORD_HASHER"`
	BcryptCost     int    `yaml:"bcrypt_cost" envconfig:"LEND_AUTH_BCRYPT_COST"`
	TokenBytes     int    `yaml:"token_bytes" envconfig:"LEND_AUTH_TOKEN_BYTES"`
}

type JournalConfig struct {
	Enable     bool   `yaml:"enable" envconfig:"LEND_JOURNAL_ENABLE"`
	Queue      string `yaml:"queue" envconfig:"LEND_JOURNAL_QUEUE"`
	BucketName string `yaml:"bucket_name" envconfig:"LEND_JOURNAL_BUCKET_NAME"`
	BufferSize int    `yaml:"buffer_size" envconfig:"LEND_JOURNAL_BUFFER_SIZE"`
}

type RedisConfig struct {
	Host          string        `yaml:"host" envconfig:"LEND_REDIS_HOST"`
	Port          string        `yaml:"port" envconfig:"LEND_REDIS_PORT"`
	DialTimeout   time.Duration `yaml:"dial_timeout" envconfig:"LEND_REDIS_DIAL_TIMEOUT"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"LEND_REDIS_READ_TIMEOUT"`
	WriteTimeout  time.Duration `yaml:"write_timeout" envconfig:"LEND_REDIS_WRITE_TIMEOUT"`
	PoolSize      int           `yaml:"pool_size" envconfig:"LEND_REDIS_POOL_SIZE"`
	PoolTimeout   time.Duration `yaml:"pool_timeout" envconfig:"LEND_REDIS_POOL_TIMEOUT"`
	Username      string        `yaml:"username" envconfig:"LEND_REDIS_USERNAME"`
	Password      string        `yaml:"password" envconfig:"LEND_REDIS_PASSWORD"`
	DatabaseIndex int           `yaml:"db_index" envconfig:"LEND_REDIS_DATABASE_INDEX"`
	KeyPrefix     string        `yaml:"key_prefix" envconfig:"LEND_REDIS_KEY_PREFIX"`
}

type BoltDBConfig struct {
	FilePath string        `yaml:"filepath" envconfig:"LEND_BOLTDB_FILE_PATH"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"LEND_BOLTDB_TIMEOUT"`
}

type SQLConfig struct {
	Driver          string        `yaml:"driver" envconfig:"LEND_SQL_DRIVER"`
	DSN             string        `yaml:"dsn" envconfig:"LEND_SQL_DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"LEND_SQL_MAX_OPEN_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"LEND_SQL_CONN_MAX_LIFETIME"`
}

// LoadConfigFile provides an instance of config structure for the all application.
func LoadConfigFile(configFile string) (*Config, error) {
	file, err := os.Open(configFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	cfg := &Config{}
	if err = yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigEnvs reads the environments variables and overrides the App config.
func LoadConfigEnvs(prefix string, config *Config) error {
	return envconfig.Process(prefix, config)
}

// InitConfig setup defaults values for non provided parameters
// and configures build tags values to be used if provided.
func InitConfig(config *Config, gitCommit, gitTag, buildTime string) error {
	if len(gitCommit) != 0 {
		config.GitCommit = gitCommit
	}

	if len(gitTag) != 0 {
		config.GitTag = gitTag
	}

	if len(buildTime) != 0 {
		config.BuildTime = buildTime
	}

	if len(config.Server.Host) == 0 || len(config.Server.Port) == 0 {
		return errors.New("make sure to set valid server address and port in configuration file")
	}

	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 30 * time.Second
	}

	if config.Server.RequestTimeout == 0 {
		config.Server.RequestTimeout = 10 * time.Second
	}

	if config.LogFolder == "" {
		config.LogFolder = "./logs"
	}

	if config.LogMaxSize <= 0 {
		config.LogMaxSize = 10
	}

	if config.Storage.Backend == "" {
		config.Storage.Backend = MemoryBackend
	}

	if config.Auth.PasswordHasher == "" {
		config.Auth.PasswordHasher = SHA256Hasher
	}

	if config.Auth.TokenBytes <= 0 {
		config.Auth.TokenBytes = 32
	}

	if config.Journal.Queue == "" {
		config.Journal.Queue = MemoryBackend
	}

	if config.Journal.BucketName == "" {
		config.Journal.BucketName = "lending.events"
	}

	if config.Journal.BufferSize <= 0 {
		config.Journal.BufferSize = 1024
	}

	switch config.Auth.PasswordHasher {
	case SHA256Hasher, BcryptHasher:
	default:
		return fmt.Errorf("unsupported password hasher %q", config.Auth.PasswordHasher)
	}

	switch config.Storage.Backend {
	case MemoryBackend:
	case RedisBackend:
		if err := validateRedisConfig(config); err != nil {
			return err
		}
	case BoltBackend:
		if len(config.BoltDB.FilePath) == 0 {
			return errors.New("make sure to set a valid boltdb file path in configuration file")
		}
	case SQLBackend:
		if config.SQL.Driver != SQLiteDriver && config.SQL.Driver != PostgresDriver {
			return fmt.Errorf("unsupported sql driver %q", config.SQL.Driver)
		}
		if len(config.SQL.DSN) == 0 {
			return errors.New("make sure to set a valid sql dsn in configuration file")
		}
	default:
		return fmt.Errorf("unsupported storage backend %q", config.Storage.Backend)
	}

	if config.Journal.Enable {
		if len(config.BoltDB.FilePath) == 0 {
			return errors.New("journal requires a valid boltdb file path in configuration file")
		}
		switch config.Journal.Queue {
		case MemoryBackend:
		case RedisBackend:
			if err := validateRedisConfig(config); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported journal queue %q", config.Journal.Queue)
		}
	}

	return nil
}

func validateRedisConfig(config *Config) error {
	if len(config.Redis.Host) == 0 || len(config.Redis.Port) == 0 {
		return errors.New("make sure to set valid redis address and port in configuration file")
	}
	return nil
}

// NeedsRedis tells if any configured component relies on a redis server.
func (c *Config) NeedsRedis() bool {
	return c.Storage.Backend == RedisBackend || (c.Journal.Enable && c.Journal.Queue == RedisBackend)
}

// NeedsBoltDB tells if any configured component relies on the bolt database file.
func (c *Config) NeedsBoltDB() bool {
	return c.Storage.Backend == BoltBackend || c.Journal.Enable
}

// LoadAndInitConfigs loads in order the configs from various predefined sources
// then build the App configuration data. The dotenv file is optional.
func LoadAndInitConfigs(configFile, envFile, gitCommit, gitTag, buildTime string) (*Config, error) {
	config, err := LoadConfigFile(configFile)
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from file: %w", err)
	}

	if _, err = os.Stat(envFile); err == nil {
		if err = godotenv.Load(envFile); err != nil {
			return config, fmt.Errorf("failed to set environment configurations: %w", err)
		}
	}

	// Use environment variables with prefix `LEND`.
	if err = LoadConfigEnvs("LEND", config); err != nil {
		return config, fmt.Errorf("failed to load configurations from environment: %w", err)
	}

	if err = InitConfig(config, gitCommit, gitTag, buildTime); err != nil {
		return config, fmt.Errorf("failed to initialize configurations: %w", err)
	}
	return config, nil
}

// Masked returns a copy of the config safe to expose on ops endpoints.
func (c *Config) Masked() Config {
	masked := *c
	if masked.Redis.Password != "" {
		masked.Redis.Password = "***"
	}
	if masked.SQL.DSN != "" {
		masked.SQL.DSN = "***"
	}
	return masked
}
