package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"boringexpenses/models"
	"boringexpenses/pkg/inbox"
	"boringexpenses/pkg/logging"
	"boringexpenses/pkg/storage"
	"boringexpenses/pkg/store"
	"boringexpenses/pkg/telemetry"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "boringexpenses",
		Short:        "Expense claims backend",
		SilenceUsage: true,
		RunE:         func(cmd *cobra.Command, args []string) error { return runServe(cmd.Context()) },
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE:  func(cmd *cobra.Command, args []string) error { return runServe(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, log, err := setup()
				if err != nil {
					return err
				}
				cfg.AutoMigrate = false
				db, err := openDB(cfg, log)
				if err != nil {
					return err
				}
				migrate(db, log)
				fmt.Println("migration completed")
				return nil
			},
		},
		newCreateUserCmd(),
		newScanReceiptsCmd(),
		newResetPasswordCmd(),
		newReportCmd(),
		newOCRCmd(),
	)
	return root
}

func setup() (Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	log := logging.Init(cfg.LogFile)
	if cfg.JWTSecret == devJWTSecret {
		log.Warn("JWT_SECRET not set, using development secret")
	}
	return cfg, log, nil
}

func runServe(ctx context.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer shutdownTelemetry(context.Background())

	db, err := openDB(cfg, log)
	if err != nil {
		return err
	}
	srv, err := NewServer(cfg, db, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Routes()}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		errCh <- httpSrv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func newCreateUserCmd() *cobra.Command {
	var req registerRequest
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user and a new company with the user as admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			db, err := openDB(cfg, log)
			if err != nil {
				return err
			}
			p, err := registerAccount(cmd.Context(), db, req, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("created user %s (%s) role=%s\n", p.Email, p.ID, p.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "login email")
	cmd.Flags().StringVar(&req.Password, "password", "", "password (min 6 characters)")
	cmd.Flags().StringVar(&req.FullName, "name", "", "display name")
	cmd.Flags().StringVar(&req.CompanyName, "company", "", "company name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newScanReceiptsCmd() *cobra.Command {
	var (
		opts  inbox.Options
		user  string
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "scan-receipts",
		Short: "Import receipt images from a directory as expenses",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()
			if opts.Currency == "" {
				opts.Currency = cfg.DefaultCurrency
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var (
				owner   models.Profile
				st      inbox.Store
				objects inbox.Objects
			)
			if !opts.DryRun {
				if user == "" {
					return errors.New("--user is required unless --dry-run is set")
				}
				db, err := openDB(cfg, log)
				if err != nil {
					return err
				}
				p, err := lookupProfile(ctx, db, user)
				if err != nil {
					return fmt.Errorf("user %q: %w", user, err)
				}
				owner = *p
				st = store.New(db)
				local, err := storage.NewLocal(cfg.UploadBase, []byte(cfg.JWTSecret))
				if err != nil {
					return err
				}
				objects = local
			}

			sc := inbox.New(opts, owner, st, objects, log)
			stats, err := sc.Scan(ctx)
			if err == nil && watch {
				err = sc.Watch(ctx)
				stats = sc.Stats()
			}
			fmt.Printf("found=%d imported=%d skipped=%d failed=%d\n", stats.Found, stats.Imported, stats.Skipped, stats.Failed)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Dir, "dir", "inbox", "directory containing receipt images")
	f.StringVar(&opts.ProcessedDir, "processed-dir", "", "where imported files are moved (default <dir>/processed)")
	f.StringVar(&user, "user", "", "owner of the imported expenses (email or id)")
	f.IntVar(&opts.Workers, "workers", 0, "concurrent OCR workers (default NumCPU)")
	f.BoolVar(&watch, "watch", false, "keep running and import new files as they arrive")
	f.BoolVar(&opts.DryRun, "dry-run", false, "list files without touching the database")
	f.BoolVar(&opts.SimulateOCR, "simulate-ocr", false, "with --dry-run, run OCR and log the result")
	f.StringVar(&opts.Currency, "currency", "", "currency for imported expenses without a detected one")
	f.Float64Var(&opts.MinConfidence, "min-confidence", 0, "OCR confidence an import must exceed (default 0.3)")
	return cmd
}

// lookupProfile finds a profile by id or email.
func lookupProfile(ctx context.Context, db *gorm.DB, ref string) (*models.Profile, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return store.New(db).GetProfile(ctx, id)
	}
	var p models.Profile
	if err := db.WithContext(ctx).Where("lower(email) = ?", strings.ToLower(strings.TrimSpace(ref))).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
