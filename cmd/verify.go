package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsvoboda/faceguard/internal/config"
	"github.com/jsvoboda/faceguard/internal/constants"
	"github.com/jsvoboda/faceguard/internal/database/postgres"
	"github.com/jsvoboda/faceguard/internal/recognition"
	"github.com/jsvoboda/faceguard/internal/vision"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Match a photo against the enrolled identities",
	Long: `Extract an embedding from a photo and match it against all enrolled
identities. Prints the nearest identity, distance and confidence.

Example:
  faceguard verify --photo probe.jpg`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().String("photo", "", "Photo file with exactly one face")
	verifyCmd.MarkFlagRequired("photo")
}

func runVerify(cmd *cobra.Command, args []string) error {
	photo := mustGetString(cmd, "photo")

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	data, err := os.ReadFile(photo)
	if err != nil {
		return fmt.Errorf("reading %s: %w", photo, err)
	}
	prepared, err := vision.PrepareFrame(data, constants.MaxFrameDimension)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", photo, err)
	}

	client := vision.NewClient(cfg.Vision.URL, time.Duration(cfg.Vision.TimeoutSeconds)*time.Second)
	embedding, err := client.ComputeEmbedding(context.Background(), prepared)
	if err != nil {
		return fmt.Errorf("extracting embedding: %w", err)
	}

	repo := postgres.NewIdentityRepository(pool)
	store := recognition.NewStore()
	count, err := publishStore(context.Background(), repo, store)
	if err != nil {
		return err
	}
	if count == 0 {
		return errors.New("no identities enrolled")
	}

	result, err := store.Match(embedding)
	if err != nil {
		return fmt.Errorf("matching: %w", err)
	}

	if !result.Recognized {
		fmt.Printf("No match (nearest distance %.4f, threshold %.2f)\n",
			result.Distance, constants.MatchDistanceThreshold)
		return nil
	}

	fmt.Printf("Matched %s (%s)\n", result.Name, result.IdentityID)
	fmt.Printf("  Distance:   %.4f\n", result.Distance)
	fmt.Printf("  Confidence: %.4f\n", result.Confidence)
	if result.Confidence < constants.MinMatchConfidence {
		fmt.Println("  Warning: confidence below the anomaly threshold")
	}
	return nil
}
