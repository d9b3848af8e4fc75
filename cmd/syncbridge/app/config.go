package app

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/syncbridge/internal/sqlobjects"
	"github.com/agentstation/syncbridge/pkg/constants"
	"github.com/agentstation/syncbridge/pkg/errors"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds the application configuration loaded from the config file,
// environment variables and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	Store        StoreConfig
	Objects      ObjectsConfig
	Notify       NotifyConfig
	Integrations []IntegrationConfig
	FuzzyPolicy  string

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// StoreConfig selects the mapping store.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// ObjectsConfig describes the internal object database.
type ObjectsConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	// Charset is the text encoding of the database, e.g. WIN1252.
	Charset string `mapstructure:"charset"`
	// Tables maps internal object types to tables.
	Tables []*sqlobjects.Table `mapstructure:"tables"`
}

// NotifyConfig configures the notification broker. Without a URL,
// notifications are logged.
type NotifyConfig struct {
	RabbitMQURL string `mapstructure:"rabbitmq_url"`
	Exchange    string `mapstructure:"exchange"`
}

// IntegrationConfig names an integration for notifications.
type IntegrationConfig struct {
	Name        string `mapstructure:"name"`
	DisplayName string `mapstructure:"display_name"`
	// Objects maps integration object names to display names.
	Objects map[string]string `mapstructure:"objects"`
}

// LoadConfig loads configuration from all sources in order of precedence:
//  1. Command-line flags (handled by cobra)
//  2. Environment variables (SYNCBRIDGE_STORE_DSN, ...)
//  3. .env files
//  4. Config file (configFile, or ~/.syncbridge.yaml and ./.syncbridge.yaml)
//  5. Defaults
func LoadConfig(configFile string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetEnvPrefix("syncbridge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configFile == "" {
		configFile = os.Getenv("SYNCBRIDGE_CONFIG")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewConfigError("config", "failed to read "+configFile, err)
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(constants.DefaultConfigName)
		// A missing default config file is fine.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.NewConfigError("config", "failed to read config file", err)
			}
		}
	}

	config := &Config{
		Verbose:    v.GetBool("verbose"),
		Quiet:      v.GetBool("quiet"),
		NoColor:    v.GetBool("no_color"),
		Format:     v.GetString("format"),
		ConfigFile: v.ConfigFileUsed(),

		Store: StoreConfig{
			Driver: v.GetString("store.driver"),
			DSN:    v.GetString("store.dsn"),
		},
		Objects: ObjectsConfig{
			Driver:  v.GetString("objects.driver"),
			DSN:     v.GetString("objects.dsn"),
			Charset: v.GetString("objects.charset"),
		},
		Notify: NotifyConfig{
			RabbitMQURL: v.GetString("notify.rabbitmq_url"),
			Exchange:    v.GetString("notify.exchange"),
		},
		FuzzyPolicy: v.GetString("judge.fuzzy_policy"),

		LogLevel:  v.GetString("log.level"),
		LogFormat: v.GetString("log.format"),
		LogOutput: v.GetString("log.output"),
	}

	if err := v.UnmarshalKey("objects.tables", &config.Objects.Tables); err != nil {
		return nil, errors.NewConfigError("objects", "invalid table definitions", err)
	}
	if err := v.UnmarshalKey("integrations", &config.Integrations); err != nil {
		return nil, errors.NewConfigError("integrations", "invalid integration definitions", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", StoreSQLite)
	v.SetDefault("store.dsn", "syncbridge.db")
	v.SetDefault("notify.exchange", constants.DefaultExchange)
	v.SetDefault("judge.fuzzy_policy", "integration")
	v.SetDefault("log.format", "auto")
	v.SetDefault("log.output", "stderr")
}

// Validate checks the parts of the configuration every command needs.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite, StorePostgres:
		if c.Store.DSN == "" {
			return errors.NewConfigError("store", "dsn is required for driver "+c.Store.Driver, nil)
		}
	default:
		return errors.NewConfigError("store", "unknown driver "+c.Store.Driver+": must be memory, sqlite or postgres", nil)
	}
	seen := map[string]bool{}
	for _, i := range c.Integrations {
		if i.Name == "" {
			return errors.NewValidationError("integrations.name", i.Name, "cannot be empty")
		}
		if seen[i.Name] {
			return errors.NewValidationError("integrations.name", i.Name, "integration configured twice")
		}
		seen[i.Name] = true
	}
	return nil
}

// UpdateFromFlags updates config values from parsed command flags so flag
// values take precedence over the config file and environment.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files. Variables
// already set are not overridden, so .env.local only fills what .env left.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}
