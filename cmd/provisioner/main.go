// Copyright 2026 The Shahin GRC Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shahin-grc/provisioner/internal/audit"
	"github.com/shahin-grc/provisioner/internal/config"
	"github.com/shahin-grc/provisioner/internal/credential"
	"github.com/shahin-grc/provisioner/internal/notification"
	"github.com/shahin-grc/provisioner/internal/observability/logger"
	"github.com/shahin-grc/provisioner/internal/observability/metrics"
	"github.com/shahin-grc/provisioner/internal/observability/tracing"
	"github.com/shahin-grc/provisioner/internal/provisioning"
	"github.com/shahin-grc/provisioner/internal/store/postgres"
	transportHTTP "github.com/shahin-grc/provisioner/internal/transport/http"
)

// Exit codes: 0 on success, 1 on failure, 3 when provisioning committed but
// the welcome email landed in the fallback artifact.
const exitFallback = 3

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	mode := "provision"
	args := os.Args[1:]
	if len(args) > 0 {
		mode = args[0]
		args = args[1:]
	}

	switch mode {
	case "migrate":
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
	case "serve":
		if err := runServe(cfg); err != nil {
			fmt.Printf("Server failed: %v\n", err)
			os.Exit(1)
		}
	case "provision":
		os.Exit(runProvision(cfg, args))
	default:
		fmt.Printf("Unknown mode %q: expected provision, serve or migrate\n", mode)
		os.Exit(1)
	}
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	slog.Info("schema applied")
	return nil
}

func runProvision(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("provision", flag.ExitOnError)
	slug := fs.String("slug", "", "tenant slug (lowercase alphanumeric with hyphens)")
	name := fs.String("name", "", "organization display name")
	code := fs.String("code", "", "short tenant code used in business identifiers")
	email := fs.String("email", "", "admin email address")
	firstName := fs.String("first-name", "", "admin first name")
	lastName := fs.String("last-name", "", "admin last name")
	password := fs.String("password", "", "admin password (generated when omitted)")
	tier := fs.String("tier", "", "subscription tier")
	fs.Parse(args)

	ctx := context.Background()
	db, err := connect(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		return 1
	}
	defer db.Close()

	orchestrator := buildOrchestrator(cfg, db)

	res, err := orchestrator.Provision(ctx, provisioning.Request{
		Slug:             *slug,
		OrganizationName: *name,
		TenantCode:       *code,
		AdminEmail:       *email,
		AdminFirstName:   *firstName,
		AdminLastName:    *lastName,
		Password:         *password,
		SubscriptionTier: *tier,
	})
	if err != nil {
		slog.Error("provisioning failed", logger.Error(err))
		fmt.Printf("Provisioning failed: %v\n", err)
		return 1
	}

	fmt.Println("Tenant provisioned")
	fmt.Printf("  Tenant ID:    %s (created=%t)\n", res.TenantID, res.TenantCreated)
	fmt.Printf("  Admin user:   %s (created=%t)\n", res.UserID, res.UserCreated)
	fmt.Printf("  Workspace:    %s (created=%t)\n", res.WorkspaceID, res.WorkspaceCreated)
	fmt.Printf("  Admin email:  %s\n", *email)

	switch {
	case res.Delivery.Delivered:
		fmt.Println("  Credentials:  sent by email")
		return 0
	case res.Delivery.FallbackPath != "":
		fmt.Printf("  Credentials:  email failed; saved to %s\n", res.Delivery.FallbackPath)
		printPassword(res)
		return exitFallback
	default:
		// Neither delivery nor artifact: the operator output is the only
		// copy of the credential.
		fmt.Printf("  Credentials:  email and fallback both failed\n")
		printPassword(res)
		return exitFallback
	}
}

// printPassword echoes the minted credential; a converged re-run mints none
// and the existing password stays in force.
func printPassword(res *provisioning.Result) {
	if res.Password == "" {
		fmt.Println("  Temporary password: (unchanged - admin user already existed)")
		return
	}
	fmt.Printf("  Temporary password: %s\n", res.Password)
}

func runServe(cfg *config.Config) error {
	ctx := context.Background()

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize meter: %w", err)
	}
	instruments, err := meter.NewProvisioningInstruments()
	if err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	db, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("connected to database")

	orchestrator := buildOrchestrator(cfg, db)

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	handler := transportHTTP.NewHandler(orchestrator, instruments, cfg.API.JWTSecret)
	router := transportHTTP.NewRouter(handler, rateLimiter)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting http server", logger.Component("server"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

func connect(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.New(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func buildOrchestrator(cfg *config.Config, db *postgres.DB) *provisioning.Orchestrator {
	auditLogger := audit.NewSlogLogger()
	hasher := credential.NewHasher(cfg.Credential.Iterations)
	transport := notification.NewSMTPTransport(notification.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	dispatcher := notification.NewDispatcher(
		transport,
		cfg.SMTP.From,
		cfg.Notification.SupportEmail,
		cfg.Notification.FallbackDir,
		auditLogger,
	)
	store := postgres.NewStore(db.Pool())
	return provisioning.NewOrchestrator(store, hasher, dispatcher, auditLogger, cfg.Notification.LoginURL)
}
