package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jsvoboda/faceguard/internal/config"
	"github.com/jsvoboda/faceguard/internal/constants"
	"github.com/jsvoboda/faceguard/internal/database"
	"github.com/jsvoboda/faceguard/internal/database/hrdir"
	"github.com/jsvoboda/faceguard/internal/database/postgres"
	"github.com/jsvoboda/faceguard/internal/vision"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll identities from photos",
	Long: `Enroll one identity from a photo, or a whole directory of photos.

Each photo is sent to the vision service for embedding extraction; the
embedding must come from exactly one clearly detected face. Near-duplicate
embeddings of already enrolled identities are skipped.

In directory mode, the identity name is derived from the file name
(dashes become spaces). If HRDIR_DATABASE_DSN is set, names are resolved
against the HR directory to attach employee IDs.

Examples:
  # Single enrollment
  faceguard enroll --photo alice.jpg --name "Alice Novak" --employee-id E-100

  # Bulk enrollment from a directory
  faceguard enroll --dir ./photos`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("photo", "", "Photo file with exactly one face")
	enrollCmd.Flags().String("name", "", "Identity name (required with --photo)")
	enrollCmd.Flags().String("employee-id", "", "Employee ID from the HR directory")
	enrollCmd.Flags().String("dir", "", "Directory of photos to enroll in bulk")
}

// imageExtensions are the photo file types accepted in directory mode.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// openHRDir connects to the HR directory when a DSN is configured.
// Returns nil without error when it is not.
func openHRDir(cfg *config.Config) (*hrdir.Pool, error) {
	if cfg.HRDir.DSN == "" {
		return nil, nil
	}
	pool, err := hrdir.NewPool(cfg.HRDir.DSN)
	if err != nil {
		return nil, fmt.Errorf("connecting to HR directory: %w", err)
	}
	return pool, nil
}

// verifyEmployee checks the employee ID against the HR directory and warns
// when the recorded name does not match the enrolled one.
func verifyEmployee(ctx context.Context, hr *hrdir.Pool, employeeID, name string) error {
	employee, err := hr.GetEmployee(ctx, employeeID)
	if err != nil {
		return fmt.Errorf("HR directory lookup: %w", err)
	}
	if employee == nil {
		return fmt.Errorf("employee %s not found in HR directory", employeeID)
	}
	if !employee.Active {
		return fmt.Errorf("employee %s is not active", employeeID)
	}
	if hrdir.NormalizePersonName(employee.Name) != hrdir.NormalizePersonName(name) {
		fmt.Printf("Warning: HR directory has %q for employee %s\n", employee.Name, employeeID)
	}
	return nil
}

// enrollOne extracts an embedding from a photo and saves a new identity.
// Returns the identity, or nil if it was skipped as a duplicate.
func enrollOne(ctx context.Context, repo *postgres.IdentityRepository, client *vision.Client, photoPath, name, employeeID string) (*database.StoredIdentity, error) {
	data, err := os.ReadFile(photoPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", photoPath, err)
	}

	prepared, err := vision.PrepareFrame(data, constants.MaxFrameDimension)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", photoPath, err)
	}

	embedding, err := client.ComputeEmbedding(ctx, prepared)
	if err != nil {
		return nil, fmt.Errorf("extracting embedding from %s: %w", photoPath, err)
	}

	if dup, distance, err := repo.FindDuplicate(ctx, embedding); err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	} else if dup != nil {
		fmt.Printf("Skipping %s: embedding within %.4f of %s (%s)\n",
			filepath.Base(photoPath), distance, dup.Name, dup.ID)
		return nil, nil
	}

	now := time.Now()
	identity := &database.StoredIdentity{
		ID:         uuid.New().String(),
		EmployeeID: employeeID,
		Name:       name,
		Embedding:  embedding,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.Save(ctx, identity); err != nil {
		return nil, fmt.Errorf("saving identity: %w", err)
	}
	return identity, nil
}

// nameFromFilename derives an identity name from a photo file name.
func nameFromFilename(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.TrimSpace(strings.ReplaceAll(base, "-", " "))
}

// resolveEmployeeID finds the employee ID for a name in the HR directory.
// An ambiguous or missing name resolves to no employee ID.
func resolveEmployeeID(ctx context.Context, hr *hrdir.Pool, name string) string {
	if hr == nil {
		return ""
	}
	employees, err := hr.FindEmployeesByName(ctx, name)
	if err != nil || len(employees) != 1 {
		return ""
	}
	return employees[0].EmployeeID
}

func runEnrollDir(ctx context.Context, repo *postgres.IdentityRepository, client *vision.Client, hr *hrdir.Pool, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory: %w", err)
	}

	var photos []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			photos = append(photos, filepath.Join(dir, entry.Name()))
		}
	}
	if len(photos) == 0 {
		return fmt.Errorf("no photos found in %s", dir)
	}

	bar := progressbar.NewOptions(len(photos),
		progressbar.OptionSetDescription("Enrolling identities"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var enrolled, skipped, failed int
	for _, photo := range photos {
		name := nameFromFilename(photo)
		employeeID := resolveEmployeeID(ctx, hr, name)

		identity, err := enrollOne(ctx, repo, client, photo, name, employeeID)
		switch {
		case err != nil:
			fmt.Printf("\nError: %v\n", err)
			failed++
		case identity == nil:
			skipped++
		default:
			enrolled++
		}
		bar.Add(1)
	}
	fmt.Printf("\nEnrolled %d, skipped %d duplicates, %d failed\n", enrolled, skipped, failed)
	return nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	photo := mustGetString(cmd, "photo")
	name := mustGetString(cmd, "name")
	employeeID := mustGetString(cmd, "employee-id")
	dir := mustGetString(cmd, "dir")

	if (photo == "") == (dir == "") {
		return errors.New("exactly one of --photo or --dir is required")
	}
	if photo != "" && name == "" {
		return errors.New("--name is required with --photo")
	}

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	hr, err := openHRDir(cfg)
	if err != nil {
		return err
	}
	if hr != nil {
		defer hr.Close()
	}

	repo := postgres.NewIdentityRepository(pool)
	client := vision.NewClient(cfg.Vision.URL, time.Duration(cfg.Vision.TimeoutSeconds)*time.Second)
	ctx := context.Background()

	if dir != "" {
		return runEnrollDir(ctx, repo, client, hr, dir)
	}

	if employeeID != "" && hr != nil {
		if err := verifyEmployee(ctx, hr, employeeID, name); err != nil {
			return err
		}
	}

	identity, err := enrollOne(ctx, repo, client, photo, name, employeeID)
	if err != nil {
		return err
	}
	if identity == nil {
		return errors.New("enrollment skipped: duplicate of an existing identity")
	}

	fmt.Printf("Enrolled %s as %s\n", identity.Name, identity.ID)
	return nil
}
