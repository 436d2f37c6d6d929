package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsvoboda/faceguard/internal/config"
	"github.com/jsvoboda/faceguard/internal/database/postgres"
	"github.com/jsvoboda/faceguard/internal/liveness"
	"github.com/jsvoboda/faceguard/internal/recognition"
	"github.com/jsvoboda/faceguard/internal/vision"
	"github.com/jsvoboda/faceguard/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the Faceguard API server.
The server exposes identity enrollment, one-shot matching, per-session
liveness checks and the anomaly event log over HTTP.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// initIdentityHNSW builds or loads the HNSW index used for duplicate
// screening during enrollment.
func initIdentityHNSW(ctx context.Context, repo *postgres.IdentityRepository, indexPath string) {
	if indexPath != "" {
		fmt.Printf("Loading identity HNSW index from %s...\n", indexPath)
	} else {
		fmt.Printf("Building in-memory HNSW index for duplicate screening...\n")
	}
	if err := repo.EnableHNSW(ctx, indexPath); err != nil {
		fmt.Printf("Warning: Failed to build identity HNSW index: %v\n", err)
		fmt.Printf("Duplicate screening will use PostgreSQL queries (slower)\n")
	}
}

// publishStore loads all active identities and publishes them to the match
// store in one atomic swap.
func publishStore(ctx context.Context, repo *postgres.IdentityRepository, store *recognition.Store) (int, error) {
	identities, err := repo.GetAllActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading identities: %w", err)
	}

	entries := make([]recognition.Entry, 0, len(identities))
	for i := range identities {
		entries = append(entries, recognition.Entry{
			IdentityID: identities[i].ID,
			Name:       identities[i].Name,
			Embedding:  identities[i].Embedding,
		})
	}

	if err := store.BulkReload(entries); err != nil {
		return 0, fmt.Errorf("publishing match store: %w", err)
	}
	return len(entries), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	identityRepo := postgres.NewIdentityRepository(pool)
	anomalyRepo := postgres.NewAnomalyRepository(pool)
	ctx := context.Background()

	initIdentityHNSW(ctx, identityRepo, cfg.Database.HNSWIndexPath)

	store := recognition.NewStore()
	count, err := publishStore(ctx, identityRepo, store)
	if err != nil {
		return err
	}
	fmt.Printf("Match store published with %d identities\n", count)

	registry := liveness.NewRegistry(
		liveness.NewPoseEstimator(cfg.Liveness.MovementThresholdDeg),
		cfg.Liveness.ScoreThreshold,
	)

	// Expire abandoned liveness sessions in the background.
	sessionTTL := time.Duration(cfg.Liveness.SessionTTLMinutes) * time.Minute
	expireDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				registry.Expire(sessionTTL)
			case <-expireDone:
				return
			}
		}
	}()
	defer close(expireDone)

	visionClient := vision.NewClient(cfg.Vision.URL, time.Duration(cfg.Vision.TimeoutSeconds)*time.Second)

	server := web.NewServer(cfg, web.Deps{
		Identities: identityRepo,
		Store:      store,
		Registry:   registry,
		Vision:     visionClient,
		Anomalies:  anomalyRepo,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		if err := identityRepo.SaveHNSWIndex(); err != nil {
			fmt.Printf("Warning: failed to save identity HNSW index: %v\n", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Faceguard API on %s\n", cfg.Web.ListenAddr)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
