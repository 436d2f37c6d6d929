package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jsvoboda/faceguard/internal/config"
	"github.com/jsvoboda/faceguard/internal/database/postgres"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "Manage enrolled identities",
}

var identitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all active identities",
	RunE:  runIdentitiesList,
}

var identitiesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Deactivate an identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentitiesDelete,
}

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "Show recent anomaly events",
	RunE:  runAnomalies,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
	identitiesCmd.AddCommand(identitiesListCmd)
	identitiesCmd.AddCommand(identitiesDeleteCmd)

	identitiesListCmd.Flags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(anomaliesCmd)
	anomaliesCmd.Flags().Int("limit", 20, "Number of events to show")
	anomaliesCmd.Flags().Bool("json", false, "Output as JSON")
}

// connectPostgres loads config and opens the identity database.
func connectPostgres() (*postgres.Pool, error) {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return pool, nil
}

func runIdentitiesList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	pool, err := connectPostgres()
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := postgres.NewIdentityRepository(pool)
	identities, err := repo.GetAllActive(context.Background())
	if err != nil {
		return fmt.Errorf("listing identities: %w", err)
	}

	if jsonOutput {
		type row struct {
			ID         string `json:"id"`
			EmployeeID string `json:"employee_id,omitempty"`
			Name       string `json:"name"`
			CreatedAt  string `json:"created_at"`
		}
		rows := make([]row, 0, len(identities))
		for i := range identities {
			rows = append(rows, row{
				ID:         identities[i].ID,
				EmployeeID: identities[i].EmployeeID,
				Name:       identities[i].Name,
				CreatedAt:  identities[i].CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMPLOYEE\tNAME\tENROLLED")
	for i := range identities {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			identities[i].ID,
			identities[i].EmployeeID,
			identities[i].Name,
			identities[i].CreatedAt.Format("2006-01-02"),
		)
	}
	w.Flush()
	fmt.Printf("\n%d active identities\n", len(identities))
	return nil
}

func runIdentitiesDelete(cmd *cobra.Command, args []string) error {
	pool, err := connectPostgres()
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := postgres.NewIdentityRepository(pool)
	ok, err := repo.Deactivate(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("deactivating identity: %w", err)
	}
	if !ok {
		return fmt.Errorf("identity %s not found", args[0])
	}

	fmt.Printf("Identity %s deactivated\n", args[0])
	return nil
}

func runAnomalies(cmd *cobra.Command, args []string) error {
	limit := mustGetInt(cmd, "limit")
	jsonOutput := mustGetBool(cmd, "json")

	pool, err := connectPostgres()
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := postgres.NewAnomalyRepository(pool)
	events, err := repo.Recent(context.Background(), limit)
	if err != nil {
		return fmt.Errorf("listing anomaly events: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tCATEGORY\tSEVERITY\tIDENTITY")
	for i := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			events[i].CreatedAt.Format("2006-01-02 15:04:05"),
			events[i].Category,
			events[i].Severity,
			events[i].IdentityID,
		)
	}
	w.Flush()
	return nil
}
