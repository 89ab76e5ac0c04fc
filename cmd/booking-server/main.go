package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/medbook/booking/internal/config"
	"github.com/medbook/booking/internal/domain/scheduling"
	"github.com/medbook/booking/internal/platform/db"
	"github.com/medbook/booking/internal/platform/middleware"
	"github.com/medbook/booking/internal/platform/sandbox"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "booking-server",
		Short:        "Doctor availability and appointment booking API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(slotsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the booking API server",
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

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			migrator, closeFn, err := openMigrator(cmd.Context(), dir)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			migrator, closeFn, err := openMigrator(cmd.Context(), dir)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func openMigrator(ctx context.Context, dir string) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.StorageDriver != config.StoragePostgres {
		return nil, nil, fmt.Errorf("migrations need STORAGE_DRIVER=%s", config.StoragePostgres)
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, poolOptions(cfg))
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, dir), pool.Close, nil
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.Modified {
				status = "modified"
			}
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo hospitals, doctors and overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			perDoctor, _ := cmd.Flags().GetInt("appointments")
			days, _ := cmd.Flags().GetInt("days")
			seed, _ := cmd.Flags().GetInt64("seed")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)
			if cfg.StorageDriver == config.StorageMemory {
				logger.Warn().Msg("seeding in-memory storage has no lasting effect")
			}

			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.seeder().Seed(cmd.Context(), sandbox.SeedConfig{
				AppointmentsPerDoctor: perDoctor,
				Days:                  days,
				Seed:                  seed,
			}, time.Now())
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d hospital(s), %d doctor(s), %d override(s), %d appointment(s).\n",
				result.Hospitals, result.Doctors, result.Overrides, result.Appointments)
			return nil
		},
	}
	cmd.Flags().Int("appointments", 0, "Synthetic bookings per doctor")
	cmd.Flags().Int("days", sandbox.DefaultSeedConfig().Days, "Spread synthetic bookings over this many days")
	cmd.Flags().Int64("seed", 0, "Random seed for synthetic bookings (0 = time based)")
	return cmd
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print a doctor's resolved slots for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, _ := cmd.Flags().GetInt64("doctor")
			rawDate, _ := cmd.Flags().GetString("date")
			if doctorID == 0 {
				return fmt.Errorf("--doctor is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, newLogger(cfg.Env))
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.seedMemory(cmd.Context()); err != nil {
				return err
			}

			date := scheduling.DateOf(time.Now().In(a.loc))
			if rawDate != "" {
				if date, err = scheduling.ParseDate(rawDate, a.loc); err != nil {
					return fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", rawDate)
				}
			}

			view, err := a.svc.ResolveDay(cmd.Context(), doctorID, date)
			if err != nil {
				return err
			}
			printDayView(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().Int64("doctor", 0, "Doctor ID")
	cmd.Flags().String("date", "", "Date as YYYY-MM-DD (default today)")
	return cmd
}

// printDayView writes one line per slot, or the day status when it has none.
func printDayView(w io.Writer, view scheduling.DayView) {
	fmt.Fprintf(w, "Doctor %d on %s: %s\n", view.DoctorID, view.Date, view.Status)
	for _, s := range view.Slots {
		mark := "free"
		if !s.Available {
			mark = "taken"
		}
		fmt.Fprintf(w, "  %-9s %s\n", s.Label, mark)
	}
}

// seedMemory loads the demo reference data into memory storage, which
// otherwise starts empty on every run.
func (a *app) seedMemory(ctx context.Context) error {
	if a.cfg.StorageDriver != config.StorageMemory {
		return nil
	}
	_, err := a.seeder().Seed(ctx, sandbox.SeedConfig{}, time.Now())
	return err
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		newLogger("").Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.close()
	if err := a.seedMemory(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed memory storage")
	}

	e := newEcho(a)

	// Reminder job
	scheduler, err := a.reminders.Schedule(cfg.ReminderCron, time.Minute)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule reminders")
	}
	scheduler.Start()
	logger.Info().Str("schedule", cfg.ReminderCron).Msg("reminder job scheduled")

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	<-scheduler.Stop().Done()
	logger.Info().Msg("server stopped")
	return nil
}

// newEcho builds the HTTP server with global middleware and every route.
func newEcho(a *app) *echo.Echo {
	cfg := a.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID(a.logger))
	e.Use(middleware.Logger(a.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond:      cfg.RateLimitRPS,
		BurstSize:              cfg.RateLimitBurst,
		WriteRequestsPerSecond: cfg.WriteLimitRPS,
		WriteBurstSize:         cfg.WriteLimitBurst,
		IdleTTL:                10 * time.Minute,
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, "/health")
		},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Health
	e.GET("/health", db.HealthHandler(nil, a.healthChecks()))
	e.GET("/health/db", db.HealthHandler(a.pool, nil))

	// API
	apiV1 := e.Group("/api/v1")
	scheduling.NewHandler(a.svc, a.loc).RegisterRoutes(apiV1)

	if cfg.IsDev() {
		sandbox.NewSeedHandler(a.seeder()).RegisterRoutes(e.Group("/sandbox"))
	}

	return e
}
