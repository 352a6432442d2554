package config

import (
	"os"
	"path/filepath"
	"testing"

	internal "github.com/ZanzyTHEbar/pretraingen/ptg"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	viper.Reset()

	// Save original directory
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	// Create temporary directory for testing
	tempDir, err := os.MkdirTemp("", "pretraingen-config-test-*")
	require.NoError(suite.T(), err)
	suite.tempDir = tempDir

	// Change to temp directory
	err = os.Chdir(tempDir)
	require.NoError(suite.T(), err)
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}
	if suite.tempDir != "" {
		os.RemoveAll(suite.tempDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	// Load config without config file (should use defaults)
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), "wordpiece", cfg.Tokenizer.Backend)
	assert.Equal(suite.T(), "nsp", cfg.Corpus.Task)
	assert.True(suite.T(), cfg.Corpus.OnMemory)
	assert.True(suite.T(), cfg.Corpus.SentenceStack)
	assert.Equal(suite.T(), internal.DefaultMaxPos, cfg.Encode.MaxPos)
	assert.Equal(suite.T(), internal.DefaultMaskProb, cfg.Encode.MaskProb)
	assert.Equal(suite.T(), internal.DefaultShortSeqProb, cfg.Encode.ShortSeqProb)
	assert.Equal(suite.T(), internal.DefaultMaxWordsLength, cfg.Encode.MaxWordsLength)
	assert.Equal(suite.T(), internal.DefaultEpochs, cfg.Cache.Epochs)
	assert.True(suite.T(), cfg.Cache.Compress)
	assert.Equal(suite.T(), 1, cfg.Cache.Workers)
}

func (suite *ConfigTestSuite) TestLoadConfigFromFile() {
	configYAML := `
tokenizer:
  backend: sugarme
  vocabPath: /data/vocab.txt
corpus:
  path: /data/corpus.txt
  task: mlm
  onMemory: false
encode:
  maxPos: 128
  maskProb: 0.2
cache:
  outputPath: /data/out/pretrain
  epochs: 3
  compress: false
  workers: 2
  seed: 99
`
	configPath := filepath.Join(suite.tempDir, "config.yaml")
	require.NoError(suite.T(), os.WriteFile(configPath, []byte(configYAML), 0o644))

	cfg, err := LoadConfig(configPath)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "sugarme", cfg.Tokenizer.Backend)
	assert.Equal(suite.T(), "/data/vocab.txt", cfg.Tokenizer.VocabPath)
	assert.Equal(suite.T(), "/data/corpus.txt", cfg.Corpus.Path)
	assert.Equal(suite.T(), "mlm", cfg.Corpus.Task)
	assert.False(suite.T(), cfg.Corpus.OnMemory)
	assert.Equal(suite.T(), 128, cfg.Encode.MaxPos)
	assert.Equal(suite.T(), 0.2, cfg.Encode.MaskProb)
	assert.Equal(suite.T(), 3, cfg.Cache.Epochs)
	assert.False(suite.T(), cfg.Cache.Compress)
	assert.Equal(suite.T(), 2, cfg.Cache.Workers)
	assert.Equal(suite.T(), int64(99), cfg.Cache.Seed)
}
