package config

import (
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/ZanzyTHEbar/pretraingen/ptg"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Tokenizer TokenizerConfig `mapstructure:"tokenizer"`
	Corpus    CorpusConfig    `mapstructure:"corpus"`
	Encode    EncodeConfig    `mapstructure:"encode"`
	Cache     CacheConfig     `mapstructure:"cache"`
}

// TokenizerConfig selects the tokenizer backend and its vocabulary.
type TokenizerConfig struct {
	Backend   string `mapstructure:"backend"`
	VocabPath string `mapstructure:"vocabPath"`
}

// CorpusConfig stores corpus source settings.
type CorpusConfig struct {
	Path          string `mapstructure:"path"`
	Task          string `mapstructure:"task"` // "mlm" or "nsp"
	OnMemory      bool   `mapstructure:"onMemory"`
	SentenceStack bool   `mapstructure:"sentenceStack"`
	BlocksPath    string `mapstructure:"blocksPath"`
}

// EncodeConfig stores feature-encoder knobs.
type EncodeConfig struct {
	MaxPos         int     `mapstructure:"maxPos"`
	MaskProb       float64 `mapstructure:"maskProb"`
	ShortSeqProb   float64 `mapstructure:"shortSeqProb"`
	MaxWordsLength int     `mapstructure:"maxWordsLength"`
}

// CacheConfig stores epoch-cache generation settings.
type CacheConfig struct {
	OutputPath string `mapstructure:"outputPath"`
	Epochs     int    `mapstructure:"epochs"`
	Compress   bool   `mapstructure:"compress"`
	Workers    int    `mapstructure:"workers"`
	Seed       int64  `mapstructure:"seed"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Set default values
	viper.SetDefault("tokenizer.backend", "wordpiece")
	viper.SetDefault("corpus.task", "nsp")
	viper.SetDefault("corpus.onMemory", true)
	viper.SetDefault("corpus.sentenceStack", true)
	viper.SetDefault("encode.maxPos", internal.DefaultMaxPos)
	viper.SetDefault("encode.maskProb", internal.DefaultMaskProb)
	viper.SetDefault("encode.shortSeqProb", internal.DefaultShortSeqProb)
	viper.SetDefault("encode.maxWordsLength", internal.DefaultMaxWordsLength)
	viper.SetDefault("cache.outputPath", filepath.Join(internal.DefaultCacheDir, "pretrain"))
	viper.SetDefault("cache.epochs", internal.DefaultEpochs)
	viper.SetDefault("cache.compress", true)
	viper.SetDefault("cache.workers", 1)
	viper.SetDefault("cache.seed", 1)

	viper.AutomaticEnv()                                   // Read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // e.g. encode.maxPos becomes ENCODE_MAXPOS

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; defaults will be used.
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	err := viper.Unmarshal(&AppConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &AppConfig, nil
}
