package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"ziptraffic/internal/dcm"
	"ziptraffic/internal/download"
	"ziptraffic/internal/manifest"
	"ziptraffic/internal/trafficker"
	"ziptraffic/pkg/config"

	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <profile-id> <advertiser-id> <campaign-id> <placement-id> <manifest.csv> <success.csv> <failure.csv>",
	Short: "Create and activate one geo-targeted video ad per manifest row",
	Long: `Upload reads the manifest CSV, creates one inactive in-stream video ad
per row (asset upload, creative, campaign association, ZIP-targeted ad),
then activates the whole batch. Activated ad IDs go to the success file,
failed rows with their errors to the failure file.`,
	Args: cobra.ExactArgs(7),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ids := make([]int64, 4)
	names := []string{"profile-id", "advertiser-id", "campaign-id", "placement-id"}
	for i, name := range names {
		id, err := strconv.ParseInt(args[i], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q", name, args[i])
		}
		ids[i] = id
	}
	manifestPath, successPath, failurePath := args[4], args[5], args[6]

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return fmt.Errorf("DCM_CLIENT_ID and DCM_CLIENT_SECRET must be set in .env")
	}

	auth := dcm.NewAuth(cfg.ClientID, cfg.ClientSecret, cfg.TokenPath)
	httpClient, err := auth.Client(ctx)
	if err != nil {
		return fmt.Errorf("not authenticated, run: ziptraffic auth login (%w)", err)
	}

	client := dcm.NewClient(httpClient, ids[0], dcm.Options{Retry: cfg.CallRetry()})

	manifestFile, err := os.Open(manifestPath)
	if err != nil {
		return err
	}
	defer manifestFile.Close()

	rows, err := manifest.NewReader(manifestFile)
	if err != nil {
		return err
	}

	successFile, err := os.Create(successPath)
	if err != nil {
		return err
	}
	defer successFile.Close()

	failureFile, err := os.Create(failurePath)
	if err != nil {
		return err
	}
	defer failureFile.Close()

	tr := trafficker.New(client, download.NewFetcher(), trafficker.Config{
		AdvertiserID:    ids[1],
		CampaignID:      ids[2],
		PlacementID:     ids[3],
		WorkDir:         cfg.Upload.WorkDir,
		CountryCode:     cfg.Targeting.CountryCode,
		CountryDartID:   cfg.Targeting.CountryDartID,
		ActivationRetry: cfg.ActivationRetry(),
	})

	slog.Info("Trafficking manifest", "manifest", manifestPath, "campaign", ids[2])
	return tr.Run(ctx, rows, manifest.NewSuccessWriter(successFile), manifest.NewFailureWriter(failureFile))
}
