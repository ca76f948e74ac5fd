package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/openautogroup/lotview/internal/auth"
	"github.com/openautogroup/lotview/internal/config"
	"github.com/openautogroup/lotview/internal/store"
	"github.com/openautogroup/lotview/internal/store/pg"
)

func seedCmd() *cobra.Command {
	var (
		email      string
		password   string
		name       string
		dealership string
		subdomain  string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Bootstrap a super-admin user and optional demo dealership",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Database.PostgresDSN == "" {
				return fmt.Errorf("LOTVIEW_POSTGRES_DSN environment variable is not set")
			}
			stores, err := pg.NewPGStores(cfg.Database.PostgresDSN)
			if err != nil {
				return err
			}

			ctx := context.Background()
			if err := seedSuperAdmin(ctx, stores, email, password, name); err != nil {
				return err
			}
			if dealership != "" {
				if err := seedDealership(ctx, stores, dealership, subdomain); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "admin@lotview.local", "super-admin email")
	cmd.Flags().StringVar(&password, "password", "", "super-admin password (required on first run)")
	cmd.Flags().StringVar(&name, "name", "Platform Admin", "super-admin display name")
	cmd.Flags().StringVar(&dealership, "dealership", "", "also create a dealership with this slug")
	cmd.Flags().StringVar(&subdomain, "subdomain", "", "subdomain for the created dealership (defaults to the slug)")
	return cmd
}

func seedSuperAdmin(ctx context.Context, stores *store.Stores, email, password, name string) error {
	if _, err := stores.Users.GetByEmail(ctx, email); err == nil {
		slog.Info("super-admin already exists", "email", email)
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if password == "" {
		return fmt.Errorf("--password is required when creating the super-admin")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	u := &store.User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         store.RoleSuperAdmin,
		IsActive:     true,
	}
	if err := stores.Users.Create(ctx, u); err != nil {
		return fmt.Errorf("create super-admin: %w", err)
	}
	slog.Info("super-admin created", "email", email, "id", u.ID)
	return nil
}

func seedDealership(ctx context.Context, stores *store.Stores, slug, subdomain string) error {
	if !store.ValidSlug(slug) {
		return fmt.Errorf("invalid dealership slug %q", slug)
	}
	if subdomain == "" {
		subdomain = slug
	}
	if _, err := stores.Dealerships.GetBySlug(ctx, slug); err == nil {
		slog.Info("dealership already exists", "slug", slug)
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	d := &store.Dealership{
		Slug:      slug,
		Subdomain: subdomain,
		Name:      slug,
		IsActive:  true,
	}
	if err := stores.Dealerships.Create(ctx, d); err != nil {
		return fmt.Errorf("create dealership: %w", err)
	}
	slog.Info("dealership created", "slug", slug, "id", d.ID)
	return nil
}
