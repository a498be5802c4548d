package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tournevent/shipbridge/internal/server"
	"github.com/tournevent/shipbridge/internal/signature"
	"github.com/tournevent/shipbridge/internal/store"
	"github.com/tournevent/shipbridge/internal/telemetry"
	"github.com/tournevent/shipbridge/pkg/platform"
	"go.uber.org/zap"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "shipbridge",
	Short:   "Shopify to S2S logistics webhook bridge",
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env file is fine; the environment may already be set.
		_ = godotenv.Load()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	RunE:  runServe,
}

var registerCarrierCmd = &cobra.Command{
	Use:   "register-carrier [shop]",
	Short: "Register the rate callback as a carrier service on a shop",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRegisterCarrier,
}

var signCmd = &cobra.Command{
	Use:   "sign [file]",
	Short: "Print the webhook signature of a payload (stdin when no file is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSign,
}

var signSecret string

func init() {
	signCmd.Flags().StringVar(&signSecret, "secret", "", "shared secret (defaults to SHOPIFY_API_SECRET)")
	rootCmd.AddCommand(serveCmd, registerCarrierCmd, signCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Initialize telemetry
	logger, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(context.WithoutCancel(ctx))
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	db, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer store.Close(db)

	backend, closeBackend, err := initBackend(cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer closeBackend()

	if worst := cfg.SyncWorstCase(); cfg.SyncTimeout < worst {
		logger.Warn("Sync timeout is shorter than the worst-case retry budget",
			zap.Duration("sync_timeout", cfg.SyncTimeout),
			zap.Duration("worst_case", worst),
		)
	}

	app := initApp(cfg, db, backend, initPlatform(cfg, logger), logger, metrics)
	defer app.rates.Wait()

	logger.Info("Starting shipbridge",
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.String("backend", backend.Name()),
	)

	// Start HTTP server
	srv := server.New(server.Config{
		Port:          cfg.Port,
		ShopifySecret: cfg.ShopifyAPISecret,
		CarrierSecret: cfg.S2SWebhookSecret,
		AdminToken:    cfg.AdminToken,
		DefaultShop:   cfg.ShopifyDefaultShop,
		SyncTimeout:   cfg.SyncTimeout,
	}, app.deps(db), logger, metrics)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runRegisterCarrier(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	shop := cfg.ShopifyDefaultShop
	if len(args) == 1 {
		shop = args[0]
	}
	if shop == "" {
		return fmt.Errorf("shop is required (argument or SHOPIFY_DEFAULT_SHOP)")
	}
	if cfg.CarrierCallbackURL == "" {
		return fmt.Errorf("CARRIER_CALLBACK_URL is required")
	}

	client, err := initPlatform(cfg, logger).ClientFor(ctx, shop)
	if err != nil {
		return err
	}
	svc, err := client.CreateCarrierService(ctx, &platform.CarrierServiceInput{
		Name:             "S2S Logistics",
		CallbackURL:      cfg.CarrierCallbackURL,
		ServiceDiscovery: true,
		Active:           true,
	})
	if err != nil {
		return fmt.Errorf("registering carrier service: %w", err)
	}

	logger.Info("Carrier service registered",
		zap.String("shop", shop),
		zap.String("carrier_service_id", svc.ID),
	)
	return nil
}

func runSign(cmd *cobra.Command, args []string) error {
	secret := signSecret
	if secret == "" {
		secret = os.Getenv("SHOPIFY_API_SECRET")
	}
	if secret == "" {
		return fmt.Errorf("--secret or SHOPIFY_API_SECRET is required")
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	body, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading payload: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), signature.Sign(body, secret))
	return nil
}
