package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
	"github.com/chime-experiment/alpenhorn-chime/internal/socketrpc"
)

const (
	defaultUpdateInterval   = model.DefaultUpdateInterval
	defaultQueryTimeout     = model.DefaultQueryTimeout
	defaultAPIAddr          = "127.0.0.1:8080"
	defaultRequestRetention = 30 // days, 0 = disabled
	defaultBackupInterval   = 6 * time.Hour
	defaultBackupKeep       = 24
	defaultWorkers          = model.DefaultWorkers
	defaultLFSCommand       = "lfs"
)

// appConfig is internal runtime configuration.
type appConfig struct {
	DBPath           string        `mapstructure:"db-path"`
	Host             string        `mapstructure:"host"`
	LogLevel         string        `mapstructure:"log-level"`
	UpdateInterval   time.Duration `mapstructure:"update-interval"`
	QueryTimeout     time.Duration `mapstructure:"query-timeout"`
	AutoImport       bool          `mapstructure:"auto-import"`
	Watch            bool          `mapstructure:"watch"`
	Workers          int           `mapstructure:"workers"`
	APIEnabled       bool          `mapstructure:"api-enabled"`
	APIAddr          string        `mapstructure:"api-addr"`
	RequestRetention int           `mapstructure:"request-retention"`
	BackupEnabled    bool          `mapstructure:"backup-enabled"`
	BackupInterval   time.Duration `mapstructure:"backup-interval"`
	BackupDir        string        `mapstructure:"backup-dir"`
	BackupKeep       int           `mapstructure:"backup-keep"`
	BackupUpload     []string      `mapstructure:"backup-upload-command"`
	JournalPath      string        `mapstructure:"journal-path"`
	LFSCommand       string        `mapstructure:"lfs-command"`
	ControlSocket    string        `mapstructure:"control-socket"`
	ConfigPath       string        `mapstructure:"-"` // not from config file
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}
	hostname, _ := os.Hostname()
	stateDir := filepath.Join(home, ".local", "share", "alpenhorn-chime")

	v := viper.New()
	v.SetEnvPrefix("ALPENHORN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("db-path", filepath.Join(stateDir, "catalog.duckdb"))
	v.SetDefault("host", hostname)
	v.SetDefault("log-level", "")
	v.SetDefault("update-interval", defaultUpdateInterval)
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("auto-import", true)
	v.SetDefault("watch", false)
	v.SetDefault("workers", defaultWorkers)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-addr", defaultAPIAddr)
	v.SetDefault("request-retention", defaultRequestRetention)
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-dir", filepath.Join(stateDir, "backups"))
	v.SetDefault("backup-keep", defaultBackupKeep)
	v.SetDefault("backup-upload-command", []string{})
	v.SetDefault("journal-path", filepath.Join(stateDir, "import.journal"))
	v.SetDefault("lfs-command", defaultLFSCommand)
	v.SetDefault("control-socket", socketrpc.DefaultSocketPath())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "alpenhorn-chime", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if strings.TrimSpace(cfg.Host) == "" {
		return cfg, errors.New("host is not set and the hostname is unknown")
	}
	if cfg.UpdateInterval <= 0 {
		return cfg, fmt.Errorf("invalid update-interval: %s", cfg.UpdateInterval)
	}
	if cfg.Workers <= 0 {
		return cfg, fmt.Errorf("invalid workers: %d", cfg.Workers)
	}

	// Expand ~ in paths
	for _, p := range []*string{&cfg.DBPath, &cfg.BackupDir, &cfg.JournalPath, &cfg.ControlSocket} {
		if strings.HasPrefix(*p, "~/") {
			*p = filepath.Join(home, (*p)[2:])
		}
	}
	return cfg, nil
}
