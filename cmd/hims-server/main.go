package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hims/hims/internal/config"
	"github.com/hims/hims/internal/domain/billing"
	"github.com/hims/hims/internal/domain/claims"
	"github.com/hims/hims/internal/domain/dha"
	"github.com/hims/hims/internal/domain/insurance"
	"github.com/hims/hims/internal/domain/patient"
	"github.com/hims/hims/internal/platform/auth"
	"github.com/hims/hims/internal/platform/db"
	"github.com/hims/hims/internal/platform/events"
	"github.com/hims/hims/internal/platform/middleware"
)

// patientDirectory adapts the patient repository to the lookup interface
// the insurance engine needs, avoiding a dependency between the two
// domain packages.
type patientDirectory struct {
	repo patient.Repository
}

func (d *patientDirectory) GetByID(ctx context.Context, id uuid.UUID) (*insurance.PatientInfo, error) {
	p, err := d.repo.GetByID(ctx, id)
	if err != nil || p == nil {
		return nil, err
	}
	return toPatientInfo(p), nil
}

func (d *patientDirectory) GetByIdentifier(ctx context.Context, normalizedID string) (*insurance.PatientInfo, error) {
	p, err := d.repo.GetByEmiratesID(ctx, normalizedID)
	if err != nil || p == nil {
		return nil, err
	}
	return toPatientInfo(p), nil
}

func toPatientInfo(p *patient.Patient) *insurance.PatientInfo {
	return &insurance.PatientInfo{
		ID:         p.ID,
		MRN:        p.MRN,
		FullName:   p.FullName(),
		EmiratesID: p.EmiratesID,
		Active:     p.Active,
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "hims-server",
		Short: "Hospital insurance and claims API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(claimsSweepCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage hospital tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			dir, _ := cmd.Flags().GetString("dir")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating tenant schema: tenant_%s\n", name)
			if err := db.CreateTenantSchema(ctx, pool, name, dir); err != nil {
				return err
			}
			fmt.Println("Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")
	createCmd.Flags().String("dir", "./migrations", "Path to migrations directory")

	cmd.AddCommand(createCmd)
	return cmd
}

// claimsSweepCmd re-polls stale SUBMITTED claims for one tenant. The DHA
// gateway offers no webhooks, so claim status has to be pulled; this is
// the command a cron job runs.
func claimsSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claims-sweep",
		Short: "Refresh payer status for claims still awaiting an answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			maxAgeDays, _ := cmd.Flags().GetInt("max-age-days")
			limit, _ := cmd.Flags().GetInt("limit")

			logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			tenantCtx, release, err := db.TenantScope(ctx, pool, tenant)
			if err != nil {
				return err
			}
			defer release()

			gateway := dha.NewGateway(dha.NewSettingsRepoPG(pool), dha.Options{
				EligibilityURL: cfg.DHAEligibilityURL,
				ClaimsURL:      cfg.DHAClaimsURL,
				Timeout:        cfg.DHATimeout,
				ProductionEnv:  cfg.IsProduction(),
				Logger:         logger,
			})
			billingRepo := billing.NewReadRepoPG(pool)
			claimSvc := claims.NewService(claims.NewRepoPG(pool), billingRepo, gateway, nil, logger)

			result, err := claimSvc.BulkRefresh(tenantCtx, time.Duration(maxAgeDays)*24*time.Hour, limit)
			if err != nil {
				return err
			}
			fmt.Printf("Checked %d claim(s), updated %d.\n", result.Checked, result.Updated)
			return nil
		},
	}
	cmd.Flags().String("tenant", "default", "Tenant identifier")
	cmd.Flags().Int("max-age-days", 30, "Only re-poll claims submitted within this many days")
	cmd.Flags().Int("limit", claims.DefaultBatchLimit, "Maximum claims per sweep")
	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		}))
	}

	e.Use(db.TenantMiddleware(pool, cfg.DefaultTenant))

	// Event bus. The audit feed logs every state change; claim and
	// insurance events also land here.
	emitter := events.NewEmitter(logger)
	emitter.Subscribe("*", events.AuditFeed(logger))

	// Repositories
	settingsRepo := dha.NewSettingsRepoPG(pool)
	patientRepo := patient.NewRepoPG(pool)
	recordRepo := insurance.NewRecordRepoPG(pool)
	claimRepo := claims.NewRepoPG(pool)
	billingRepo := billing.NewReadRepoPG(pool)

	// DHA payer gateway
	gateway := dha.NewGateway(settingsRepo, dha.Options{
		EligibilityURL: cfg.DHAEligibilityURL,
		ClaimsURL:      cfg.DHAClaimsURL,
		Timeout:        cfg.DHATimeout,
		ProductionEnv:  cfg.IsProduction(),
		Logger:         logger,
	})

	// Services
	insuranceSvc := insurance.NewService(recordRepo, &patientDirectory{repo: patientRepo},
		billingRepo, gateway, emitter, logger)
	claimSvc := claims.NewService(claimRepo, billingRepo, gateway, emitter, logger)

	// Routes
	apiV1 := e.Group("/api/v1")
	dha.NewHandler(gateway, settingsRepo).RegisterRoutes(apiV1)
	insurance.NewHandler(insuranceSvc).RegisterRoutes(apiV1)
	claims.NewHandler(claimSvc).RegisterRoutes(apiV1)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	emitter.Wait()
	logger.Info().Msg("server stopped")
	return nil
}
