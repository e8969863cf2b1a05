package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	OneMap  OneMapConfig  `yaml:"onemap" mapstructure:"onemap"`
	DataGov DataGovConfig `yaml:"datagov" mapstructure:"datagov"`
	Amenity AmenityConfig `yaml:"amenity" mapstructure:"amenity"`
	Train   TrainConfig   `yaml:"train" mapstructure:"train"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OneMapConfig configures the geocoding client.
type OneMapConfig struct {
	BaseURL           string `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerMinute int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// DataGovConfig configures the upstream datastore client.
type DataGovConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	MetadataURL string `yaml:"metadata_url" mapstructure:"metadata_url"`
	BatchLimit  int    `yaml:"batch_limit" mapstructure:"batch_limit"`
}

// AmenityConfig configures amenity seeds and the station sync.
type AmenityConfig struct {
	MRTSeedPath     string  `yaml:"mrt_seed_path" mapstructure:"mrt_seed_path"`
	MallSeedPath    string  `yaml:"mall_seed_path" mapstructure:"mall_seed_path"`
	DownloadLinkURL string  `yaml:"download_link_url" mapstructure:"download_link_url"`
	MallRadiusKM    float64 `yaml:"mall_radius_km" mapstructure:"mall_radius_km"`
}

// TrainConfig configures the retrain gate and model artifact.
type TrainConfig struct {
	ModelPath    string  `yaml:"model_path" mapstructure:"model_path"`
	Threshold    float64 `yaml:"threshold" mapstructure:"threshold"`
	RecentWindow int     `yaml:"recent_window" mapstructure:"recent_window"`
	TrainWindow  int     `yaml:"train_window" mapstructure:"train_window"`
	ValFraction  float64 `yaml:"val_fraction" mapstructure:"val_fraction"`
	Seed         int64   `yaml:"seed" mapstructure:"seed"`
}

// ServerConfig configures the prediction server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RESALE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "resale.db")
	v.SetDefault("onemap.requests_per_minute", 250)
	v.SetDefault("datagov.batch_limit", 1000)
	v.SetDefault("amenity.mrt_seed_path", "assets/amenities/mrt.csv")
	v.SetDefault("amenity.mall_seed_path", "assets/amenities/shopping_malls.csv")
	v.SetDefault("amenity.mall_radius_km", 5.0)
	v.SetDefault("train.model_path", "assets/model/model.json")
	v.SetDefault("train.threshold", 0.9)
	v.SetDefault("train.recent_window", 100)
	v.SetDefault("train.train_window", 10000)
	v.SetDefault("train.val_fraction", 0.25)
	v.SetDefault("train.seed", 42)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
