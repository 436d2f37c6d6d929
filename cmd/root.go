package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "faceguard",
	Short: "Face recognition and liveness engine for attendance verification",
	Long: `Faceguard matches face embeddings against enrolled identities, checks
that the presented face belongs to a live person (blink and head-pose
analysis), and classifies suspicious presentations as anomalies.

Embeddings and landmarks come from an external vision service; this tool
owns enrollment, matching, liveness fusion and the anomaly log.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
