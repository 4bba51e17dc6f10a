package dossiers

import (
	"errors"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL = "https://www.demarches-simplifiees.fr/api/v1"
	DefaultDBPath  = "workinfrance.db"

	EnvAPIToken    = "DEMARCHES_SIMPLIFIEES_API_TOKEN"
	EnvProcedureID = "DEMARCHES_SIMPLIFIEES_PROCEDURE_ID_APT"
)

type APIConfig struct {
	BaseURL     string        `yaml:"base_url"`
	ProcedureID string        `yaml:"procedure_id"`
	Token       string        `yaml:"token"`
	PageSize    int           `yaml:"page_size"`
	Timeout     time.Duration `yaml:"timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Debug bool   `yaml:"debug"`
	File  string `yaml:"file"`
	// Rotation of File, in megabytes and kept files.
	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
}

type FileConfig struct {
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	// Directory receiving stats.json and validity_check.json.
	MediaRoot string    `yaml:"media_root"`
	Log       LogConfig `yaml:"log"`
}

// DefaultConfig is the configuration used without a config file, completed
// from the environment.
func DefaultConfig() *FileConfig {
	cfg := &FileConfig{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a YAML config file. ${VAR} references are expanded from
// the environment before parsing.
func LoadConfig(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *FileConfig) applyDefaults() {
	c.API.BaseURL = strings.TrimSpace(c.API.BaseURL)
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		c.API.Token = os.Getenv(EnvAPIToken)
	}
	c.API.ProcedureID = strings.TrimSpace(c.API.ProcedureID)
	if c.API.ProcedureID == "" {
		c.API.ProcedureID = os.Getenv(EnvProcedureID)
	}
	if c.API.PageSize <= 0 {
		c.API.PageSize = DefaultPageSize
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = 30 * time.Second
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		c.Database.Path = DefaultDBPath
	}
	if strings.TrimSpace(c.MediaRoot) == "" {
		c.MediaRoot = "media"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 5
	}
}

// Validate reports what a sync cannot run without.
func (c APIConfig) Validate() error {
	var errs []error
	if c.ProcedureID == "" {
		errs = append(errs, errors.New("missing procedure id (api.procedure_id or "+EnvProcedureID+")"))
	}
	if c.Token == "" {
		errs = append(errs, errors.New("missing api token (api.token or "+EnvAPIToken+")"))
	}
	return errors.Join(errs...)
}
