// Package config loads migrator settings from viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"evalgo.org/dataflowmigrator/internal/archive"
	"evalgo.org/dataflowmigrator/internal/client"
	"evalgo.org/dataflowmigrator/internal/definition"
	"evalgo.org/dataflowmigrator/internal/domain"
	"evalgo.org/dataflowmigrator/internal/helpers"
)

// EnvPrefix is prepended to every environment variable, e.g.
// DFM_AUTH_CLIENT_SECRET for auth.client_secret.
const EnvPrefix = "DFM"

// Config is the complete runtime configuration.
type Config struct {
	Debug   bool
	Fabric  FabricConfig
	Auth    client.AuthConfig
	Migrate MigrateConfig
	Ledger  LedgerConfig
	Archive archive.Config
	Server  ServerConfig
}

// FabricConfig locates the REST API.
type FabricConfig struct {
	BaseURL string
	Timeout time.Duration
}

// MigrateConfig tunes item processing.
type MigrateConfig struct {
	Concurrency         int
	MarkerPrefix        string
	DefinitionPart      string
	DefinitionPartIndex int
	StorageTargetType   domain.ItemType
}

// LedgerConfig places the run ledger.
type LedgerConfig struct {
	Dir           string
	RetentionDays int
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Port       int
	APIKey     string
	APIKeyHash string
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("fabric.base_url", helpers.DefaultFabricBaseURL)
	v.SetDefault("fabric.timeout", 30*time.Second)
	v.SetDefault("auth.mode", client.AuthModeClientCredentials)
	v.SetDefault("auth.scopes", []string{helpers.DefaultFabricScope})
	v.SetDefault("migrate.concurrency", 1)
	v.SetDefault("migrate.marker_prefix", helpers.DefaultMarkerPrefix)
	v.SetDefault("migrate.definition_part", helpers.DefaultDefinitionPart)
	v.SetDefault("migrate.definition_part_index", helpers.DefaultDefinitionPartIndex)
	v.SetDefault("migrate.storage_target_type", helpers.DefaultStorageTarget)
	v.SetDefault("ledger.dir", defaultLedgerDir())
	v.SetDefault("ledger.retention_days", helpers.DefaultRetentionDays)
	v.SetDefault("archive.kind", archive.KindNone)
	v.SetDefault("archive.dir", "")
	v.SetDefault("archive.minio.use_ssl", true)
	v.SetDefault("server.port", 8080)
}

// BindEnv makes every key readable from DFM_* environment variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Debug: v.GetBool("debug"),
		Fabric: FabricConfig{
			BaseURL: helpers.NormalizeURL(v.GetString("fabric.base_url")),
			Timeout: v.GetDuration("fabric.timeout"),
		},
		Auth: client.AuthConfig{
			Mode:         strings.ToLower(strings.TrimSpace(v.GetString("auth.mode"))),
			TenantID:     v.GetString("auth.tenant_id"),
			ClientID:     v.GetString("auth.client_id"),
			ClientSecret: v.GetString("auth.client_secret"),
			TokenURL:     v.GetString("auth.token_url"),
			Issuer:       v.GetString("auth.issuer"),
			Scopes:       v.GetStringSlice("auth.scopes"),
			Token:        v.GetString("auth.token"),
		},
		Migrate: MigrateConfig{
			Concurrency:         v.GetInt("migrate.concurrency"),
			MarkerPrefix:        v.GetString("migrate.marker_prefix"),
			DefinitionPart:      v.GetString("migrate.definition_part"),
			DefinitionPartIndex: v.GetInt("migrate.definition_part_index"),
			StorageTargetType:   domain.ItemType(v.GetString("migrate.storage_target_type")),
		},
		Ledger: LedgerConfig{
			Dir:           v.GetString("ledger.dir"),
			RetentionDays: v.GetInt("ledger.retention_days"),
		},
		Archive: archive.Config{
			Kind: strings.ToLower(strings.TrimSpace(v.GetString("archive.kind"))),
			Dir:  v.GetString("archive.dir"),
			Minio: archive.MinioConfig{
				Endpoint:  v.GetString("archive.minio.endpoint"),
				AccessKey: v.GetString("archive.minio.access_key"),
				SecretKey: v.GetString("archive.minio.secret_key"),
				Bucket:    v.GetString("archive.minio.bucket"),
				Region:    v.GetString("archive.minio.region"),
				Prefix:    v.GetString("archive.minio.prefix"),
				UseSSL:    v.GetBool("archive.minio.use_ssl"),
			},
		},
		Server: ServerConfig{
			Port:       v.GetInt("server.port"),
			APIKey:     v.GetString("server.api_key"),
			APIKeyHash: v.GetString("server.api_key_hash"),
		},
	}

	if cfg.Archive.Kind == archive.KindFS && cfg.Archive.Dir == "" && cfg.Ledger.Dir != "" {
		cfg.Archive.Dir = filepath.Join(cfg.Ledger.Dir, "definitions")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks everything that does not need network access. Auth
// settings are checked by the client manager on first use so that
// read-only commands work without credentials.
func (c Config) Validate() error {
	if c.Fabric.BaseURL == "" {
		return domain.NewValidationError("fabric.base_url", "must not be empty")
	}
	if !strings.HasPrefix(c.Fabric.BaseURL, "http://") && !strings.HasPrefix(c.Fabric.BaseURL, "https://") {
		return domain.NewValidationError("fabric.base_url", fmt.Sprintf("%q is not an http(s) URL", c.Fabric.BaseURL))
	}
	if c.Fabric.Timeout < 0 {
		return domain.NewValidationError("fabric.timeout", "must not be negative")
	}
	if c.Migrate.Concurrency < 1 {
		return domain.NewValidationError("migrate.concurrency", "must be at least 1")
	}
	if strings.TrimSpace(c.Migrate.MarkerPrefix) == "" {
		return domain.NewValidationError("migrate.marker_prefix", "must not be empty")
	}
	if c.Migrate.DefinitionPart == "" && c.Migrate.DefinitionPartIndex < 0 {
		return domain.NewValidationError("migrate.definition_part_index", "must not be negative when no part path is set")
	}
	if c.Migrate.StorageTargetType == "" {
		return domain.NewValidationError("migrate.storage_target_type", "must not be empty")
	}
	if c.Ledger.Dir == "" {
		return domain.NewValidationError("ledger.dir", "must not be empty")
	}
	switch c.Archive.Kind {
	case "", archive.KindNone, archive.KindFS:
	case archive.KindMinio:
		if err := c.Archive.Minio.Validate(); err != nil {
			return err
		}
	default:
		return domain.NewValidationError("archive.kind", fmt.Sprintf("unknown archive kind %q", c.Archive.Kind))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return domain.NewValidationError("server.port", fmt.Sprintf("invalid port %d", c.Server.Port))
	}
	return nil
}

// Selector returns the definition part selector.
func (c Config) Selector() definition.PartSelector {
	return definition.PartSelector{Path: c.Migrate.DefinitionPart, Index: c.Migrate.DefinitionPartIndex}
}

// RunConfig builds the run inputs; an empty sourceLakehouse defaults to
// targetLakehouse.
func (c Config) RunConfig(targetWorkspace, targetLakehouse, sourceLakehouse, sourceWorkspace string) domain.RunConfig {
	targetWorkspace = strings.TrimSpace(targetWorkspace)
	targetLakehouse = strings.TrimSpace(targetLakehouse)
	sourceLakehouse = strings.TrimSpace(sourceLakehouse)
	if sourceLakehouse == "" {
		sourceLakehouse = targetLakehouse
	}
	return domain.RunConfig{
		TargetWorkspace: targetWorkspace,
		TargetLakehouse: targetLakehouse,
		SourceLakehouse: sourceLakehouse,
		SourceWorkspace: strings.TrimSpace(sourceWorkspace),
		Marker:          domain.NewMarker(c.Migrate.MarkerPrefix, targetWorkspace),
	}
}

func defaultLedgerDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "dataflowmigrator")
	}
	return filepath.Join(os.TempDir(), "dataflowmigrator")
}
