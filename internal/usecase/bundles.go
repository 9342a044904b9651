package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/intentd/internal/config"
	"github.com/eliteGoblin/focusd/intentd/internal/domain"
)

// SyncBundles applies the declarative bundle config to storage.
// Additive only: a config-declared bundle whose name already exists is
// left untouched, so user edits win over file redefinition. It also
// materializes the reserved Admin bundle on first run.
func SyncBundles(ctx context.Context, repo domain.BundleRepository, cfg config.BundleConfig, logger *zap.Logger) error {
	if err := ensureAdminBundle(ctx, repo); err != nil {
		return err
	}

	for _, def := range cfg.Bundles {
		if def.Name == "" {
			logger.Warn("skipping bundle definition with empty name")
			continue
		}
		existing, err := repo.GetBundleByName(ctx, def.Name)
		if err != nil {
			return fmt.Errorf("lookup bundle %q: %w", def.Name, err)
		}
		if existing != nil {
			continue
		}

		b := domain.Bundle{
			Name:         def.Name,
			URLPatterns:  def.URLPatterns,
			AllowAllApps: def.AllowAllApps,
			AllowAllURLs: def.AllowAllURLs,
		}
		for _, app := range def.Apps {
			b.Apps = append(b.Apps, domain.BundleApp{
				Identifier:  app.ID,
				DisplayName: app.Name,
			})
		}

		if _, err := repo.CreateBundle(ctx, b); err != nil {
			return fmt.Errorf("create bundle %q: %w", def.Name, err)
		}
		logger.Info("created bundle from config", zap.String("name", def.Name))
	}

	return nil
}

// ensureAdminBundle creates the allow-everything Admin bundle once,
// checked by name so subsequent runs never duplicate it.
func ensureAdminBundle(ctx context.Context, repo domain.BundleRepository) error {
	existing, err := repo.GetBundleByName(ctx, domain.AdminBundleName)
	if err != nil {
		return fmt.Errorf("lookup admin bundle: %w", err)
	}
	if existing != nil {
		return nil
	}
	_, err = repo.CreateBundle(ctx, domain.Bundle{
		Name:         domain.AdminBundleName,
		AllowAllApps: true,
		AllowAllURLs: true,
	})
	if err != nil {
		return fmt.Errorf("create admin bundle: %w", err)
	}
	return nil
}
