package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"evalgo.org/dataflowmigrator/internal/annotate"
	"evalgo.org/dataflowmigrator/internal/archive"
	"evalgo.org/dataflowmigrator/internal/catalog"
	"evalgo.org/dataflowmigrator/internal/client"
	"evalgo.org/dataflowmigrator/internal/config"
	"evalgo.org/dataflowmigrator/internal/definition"
	"evalgo.org/dataflowmigrator/internal/ledger"
	"evalgo.org/dataflowmigrator/internal/metrics"
	"evalgo.org/dataflowmigrator/internal/operations"
)

// app bundles the components a command needs
type app struct {
	cfg      config.Config
	ledger   *ledger.Ledger
	metrics  *metrics.Metrics
	migrator *operations.Migrator
	log      *logrus.Entry
}

// loadConfig reads the process configuration from the global viper
func loadConfig() (config.Config, error) {
	return config.Load(viper.GetViper())
}

// openLedger opens the run ledger only, for commands that never call Fabric
func openLedger(cfg config.Config) (*ledger.Ledger, error) {
	ldg, err := ledger.NewLedger(cfg.Ledger.Dir, cfg.Ledger.RetentionDays)
	if err != nil {
		return nil, fmt.Errorf("failed to open run ledger: %w", err)
	}
	return ldg, nil
}

// newApp authenticates against Fabric and wires every component
func newApp(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*app, error) {
	manager := client.NewManager(cfg.Auth, cfg.Fabric.Timeout, cfg.Debug)

	info, err := callerIdentity(ctx, manager, cfg.Fabric.BaseURL, time.Now())
	switch {
	case errors.Is(err, errTokenExpired):
		return nil, err
	case err != nil:
		logrus.WithError(err).Warn("Could not read caller identity from access token")
	default:
		logrus.WithFields(logrus.Fields{
			"principal":  info.Principal,
			"object_id":  info.ObjectID,
			"tenant_id":  info.TenantID,
			"expires_at": info.ExpiresAt,
		}).Info("Authenticated against Fabric")
	}

	api, err := manager.GetAPI(ctx, cfg.Fabric.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create Fabric client: %w", err)
	}

	return newAppWithAPI(ctx, cfg, api, info, m)
}

var errTokenExpired = errors.New("access token expired")

// identitySource is the part of client.Manager that callerIdentity needs
type identitySource interface {
	Identity(ctx context.Context, baseURL string) (client.TokenInfo, error)
	ClearCache()
}

// callerIdentity reads the claims of the current access token. An expired
// token is dropped from the cache and fetched once more; a token that is
// still expired then, e.g. a static auth.token, is an error.
func callerIdentity(ctx context.Context, src identitySource, baseURL string, now time.Time) (client.TokenInfo, error) {
	info, err := src.Identity(ctx, baseURL)
	if err != nil || !info.Expired(now) {
		return info, err
	}

	src.ClearCache()
	if info, err = src.Identity(ctx, baseURL); err != nil {
		return client.TokenInfo{}, err
	}
	if info.Expired(now) {
		return client.TokenInfo{}, fmt.Errorf("%w at %s", errTokenExpired, info.ExpiresAt.Format(time.RFC3339))
	}
	return info, nil
}

// runMetadata is what every run records about the caller
func runMetadata(info client.TokenInfo) map[string]interface{} {
	md := make(map[string]interface{})
	if info.ObjectID != "" {
		md["object_id"] = info.ObjectID
	}
	if info.TenantID != "" {
		md["tenant_id"] = info.TenantID
	}
	if !info.ExpiresAt.IsZero() {
		md["token_expires_at"] = info.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return md
}

// newAppWithAPI wires every component around an existing API client
func newAppWithAPI(ctx context.Context, cfg config.Config, api client.Requester, identity client.TokenInfo, m *metrics.Metrics) (*app, error) {
	sink, err := archive.New(ctx, cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("failed to open definition archive: %w", err)
	}

	ldg, err := openLedger(cfg)
	if err != nil {
		return nil, err
	}

	log := logrus.WithField("component", "migrator")
	opts := operations.Options{
		Concurrency: cfg.Migrate.Concurrency,
		Recorder:    ldg,
		Locker:      ldg,
		Principal:   identity.Principal,
		Metadata:    runMetadata(identity),
		Log:         log,
	}
	if m != nil {
		opts.Observer = m
	}

	migrator := operations.NewMigrator(
		catalog.NewResolver(api, cfg.Migrate.StorageTargetType, log),
		definition.NewPatcher(api, cfg.Selector(), sink, log),
		annotate.NewAnnotator(api, log),
		opts,
	)

	return &app{
		cfg:      cfg,
		ledger:   ldg,
		metrics:  m,
		migrator: migrator,
		log:      log,
	}, nil
}
