package main

import (
	"context"
	crypto_rand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/appointments/internal/config"
	"github.com/ehr/appointments/internal/domain/identity"
	"github.com/ehr/appointments/internal/domain/scheduling"
	"github.com/ehr/appointments/internal/platform/auth"
	"github.com/ehr/appointments/internal/platform/db"
	"github.com/ehr/appointments/internal/platform/middleware"
	"github.com/ehr/appointments/internal/platform/telemetry"
	"github.com/ehr/appointments/migrations"
)

const tokenIssuer = "appointments"

func main() {
	rootCmd := &cobra.Command{
		Use:   "appointments-server",
		Short: "Practitioner appointment scheduling API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(summaryCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the appointments API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// newLogger builds the process logger: JSON on stdout, or a console writer
// in development.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: out}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
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
	return fn(ctx, cfg, pool)
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
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				if schema == "" {
					schema = cfg.MigrationsSchema
				}
				migrator := db.NewMigrator(pool, migrationFiles(dir), schema)
				fmt.Printf("Running migrations on schema: %s\n", schema)

				count, err := migrator.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("schema", "", "Target schema for migrations (default MIGRATIONS_SCHEMA)")
	upCmd.Flags().String("dir", "", "Read migrations from a directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				if schema == "" {
					schema = cfg.MigrationsSchema
				}
				statuses, err := db.NewMigrator(pool, migrationFiles(dir), schema).Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(os.Stdout, schema, statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema for migrations (default MIGRATIONS_SCHEMA)")
	statusCmd.Flags().String("dir", "", "Read migrations from a directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printMigrationStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func summaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print a doctor's dashboard figures",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, _ := cmd.Flags().GetString("doctor")
			dateStr, _ := cmd.Flags().GetString("date")
			if doctorID == "" {
				return fmt.Errorf("--doctor is required")
			}
			date := time.Now()
			if dateStr != "" {
				d, err := scheduling.ParseDate(dateStr)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				date = d
			}

			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				doctor, err := identity.NewDoctorRepo(pool).GetByID(ctx, doctorID)
				if err != nil {
					return fmt.Errorf("load doctor %s: %w", doctorID, err)
				}
				s, err := buildSummary(ctx, scheduling.NewAppointmentRepoPG(pool), doctor.ID, date, cfg.UpcomingHorizonDays)
				if err != nil {
					return err
				}
				printSummary(os.Stdout, doctor, s)
				return nil
			})
		},
	}
	cmd.Flags().String("doctor", "", "Doctor id")
	cmd.Flags().String("date", "", "Reference date YYYY-MM-DD (default today)")
	return cmd
}

type summary struct {
	Date     string
	Today    []scheduling.Appointment
	Upcoming []scheduling.Appointment
	Stats    scheduling.Stats
}

// buildSummary reads the horizon window for the today and upcoming lists
// and the full history for the status figures.
func buildSummary(ctx context.Context, repo scheduling.AppointmentRepository, doctorID string, date time.Time, horizonDays int) (summary, error) {
	if horizonDays <= 0 {
		horizonDays = scheduling.DefaultUpcomingHorizonDays
	}
	from := scheduling.FormatDate(date)
	to := scheduling.FormatDate(date.AddDate(0, 0, horizonDays))

	window, err := repo.ListRange(ctx, doctorID, from, to)
	if err != nil {
		return summary{}, fmt.Errorf("list appointments %s..%s: %w", from, to, err)
	}
	all, err := repo.List(ctx, doctorID)
	if err != nil {
		return summary{}, fmt.Errorf("list appointments: %w", err)
	}
	today, upcoming := scheduling.TodayAndUpcoming(window, date, horizonDays)
	return summary{
		Date:     from,
		Today:    today,
		Upcoming: upcoming,
		Stats:    scheduling.PartitionByStatus(all),
	}, nil
}

func printSummary(w io.Writer, doctor *identity.Doctor, s summary) {
	fmt.Fprintf(w, "Dr. %s (%s) on %s\n", doctor.Name, doctor.Specialty, s.Date)
	fmt.Fprintf(w, "Total %d  scheduled %d  completed %d  cancelled %d  no-show %d  completion %d%%\n",
		s.Stats.Total, s.Stats.Scheduled, s.Stats.Completed, s.Stats.Cancelled, s.Stats.NoShow, s.Stats.CompletionRate)

	fmt.Fprintf(w, "\nToday (%d)\n", len(s.Today))
	for _, a := range s.Today {
		fmt.Fprintf(w, "  %s-%s  %-10s %s\n", a.StartTime, a.EndTime, a.Status.Label(), a.PatientID)
	}
	fmt.Fprintf(w, "\nUpcoming (%d)\n", len(s.Upcoming))
	for _, a := range s.Upcoming {
		fmt.Fprintf(w, "  %s %s-%s  %-10s %s\n", a.Date, a.StartTime, a.EndTime, a.Status.Label(), a.PatientID)
	}
}

// resolveSigningKey returns the configured token signing key. Development
// without a key gets a random one, so tokens do not survive a restart.
func resolveSigningKey(cfg *config.Config) ([]byte, bool, error) {
	if cfg.AuthSigningKey != "" {
		return []byte(cfg.AuthSigningKey), false, nil
	}
	if !cfg.IsDev() {
		return nil, false, errors.New("AUTH_SIGNING_KEY is required")
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random signing key: %w", err)
	}
	return key, true, nil
}

// revocationStore picks Redis when REDIS_URL is set, else the in-process
// store. The returned func releases it.
func revocationStore(ctx context.Context, cfg *config.Config) (auth.RevocationStore, func(), error) {
	if cfg.RedisURL == "" {
		s := auth.NewMemoryRevocationStore(time.Minute)
		return s, s.Close, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return auth.NewRedisRevocationStore(client), func() { client.Close() }, nil
}

// serverDeps are the process-scoped collaborators of the HTTP server.
type serverDeps struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Conn        db.DBTX
	Pinger      db.Pinger
	PoolStats   func() *db.PoolStats
	Tokens      *auth.TokenManager
	Revocations auth.RevocationStore
	Metrics     *telemetry.Metrics
	Limiter     *middleware.RateLimiter
	Now         func() time.Time
}

// newServer assembles the echo instance: global middleware, infrastructure
// endpoints and the /api/v1 routes of both domains.
func newServer(d serverDeps) (*echo.Echo, *scheduling.Sessions) {
	cfg := d.Config

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(d.Logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.Logger))
	e.Use(d.Metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(middleware.DefaultBodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Tokens:      d.Tokens,
		Revocations: d.Revocations,
		Skipper:     auth.AuthSkipper,
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg, cfg.DevDoctorID))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Infrastructure
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(d.Pinger, d.PoolStats))
	e.GET("/metrics", d.Metrics.Handler())

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(d.Limiter))

	// Identity domain
	patients := identity.NewPatientRepo(d.Conn)
	identitySvc := identity.NewService(identity.NewDoctorRepo(d.Conn), patients, d.Tokens, d.Revocations)

	// Scheduling domain
	sessions := scheduling.NewSessions(
		scheduling.NewAppointmentRepoPG(d.Conn),
		patients,
		scheduling.Options{
			Logger:      d.Logger,
			Failures:    d.Metrics,
			Now:         d.Now,
			HorizonDays: cfg.UpcomingHorizonDays,
		},
		d.Metrics,
	)

	// Patient edits change the names an open workspace resolves; reload it,
	// or drop it so the next request loads fresh.
	patientsChanged := func(ctx context.Context, doctorID string) {
		if err := sessions.Refresh(ctx, doctorID); err != nil {
			sessions.Drop(doctorID)
		}
	}
	identity.NewHandler(identitySvc, sessions.Drop, patientsChanged).RegisterRoutes(apiV1)
	scheduling.NewHandler(sessions, identitySvc).RegisterRoutes(apiV1)

	return e, sessions
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logger
	logger := newLogger(cfg, os.Stdout)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.IsDev() {
		logger.Warn().Str("dev_doctor_id", cfg.DevDoctorID).
			Msg("development mode: requests without a token act as DEV_DOCTOR_ID")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Auth
	key, random, err := resolveSigningKey(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve signing key")
	}
	if random {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set, using a random key")
	}
	revocations, closeRevocations, err := revocationStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open revocation store")
	}
	defer closeRevocations()

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer limiter.Close()

	e, _ := newServer(serverDeps{
		Config:      cfg,
		Logger:      logger,
		Conn:        pool,
		Pinger:      pool,
		PoolStats:   func() *db.PoolStats { return db.GetPoolStats(pool) },
		Tokens:      auth.NewTokenManager(key, tokenIssuer, cfg.AuthTokenTTL),
		Revocations: revocations,
		Metrics:     telemetry.NewMetrics(),
		Limiter:     limiter,
		Now:         time.Now,
	})

	// Graceful shutdown
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
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
