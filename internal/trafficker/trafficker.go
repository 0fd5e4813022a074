// Package trafficker drives the bulk upload run: it turns each manifest row
// into a geo-targeted ad through the trafficking API, isolating per-row
// failures, and then activates every created ad once the platform has had
// time to transcode the videos.
package trafficker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ziptraffic/internal/dcm"
	"ziptraffic/internal/manifest"
	"ziptraffic/pkg/retry"
)

const adNamePrefix = "AD_"

// ErrAdsPending marks an activation pass that left ads unactivated, usually
// because the platform is still transcoding their videos.
var ErrAdsPending = errors.New("ads pending activation")

// API is the subset of the trafficking client the orchestrator needs.
type API interface {
	GetCampaign(ctx context.Context, id int64) (*dcm.Campaign, error)
	GetAd(ctx context.Context, id int64) (*dcm.Ad, error)
	GetCreative(ctx context.Context, id int64) (*dcm.Creative, error)
	UploadAsset(ctx context.Context, advertiserID int64, name, videoFile string) (*dcm.AssetIdentifier, error)
	InsertCreative(ctx context.Context, creative *dcm.Creative) (*dcm.Creative, error)
	AssociateCreative(ctx context.Context, campaignID, creativeID int64) error
	InsertAd(ctx context.Context, ad *dcm.Ad) (*dcm.Ad, error)
	UpdateAd(ctx context.Context, ad *dcm.Ad) (*dcm.Ad, error)
	UpdateCreative(ctx context.Context, creative *dcm.Creative) (*dcm.Creative, error)
}

// Downloader fetches a remote video to a local file.
type Downloader interface {
	Fetch(ctx context.Context, url, dest string) error
}

type Config struct {
	AdvertiserID int64
	CampaignID   int64
	PlacementID  int64

	// WorkDir holds videos downloaded on demand. Defaults to os.TempDir().
	WorkDir string

	// Geo-targeting country for the postal codes.
	CountryCode   string
	CountryDartID int64

	// ActivationRetry paces the activation passes. Its budget must be large
	// enough to cover server-side transcoding; it is independent from, and
	// larger than, the per-call retry budget inside the API client.
	ActivationRetry retry.Policy
}

type Trafficker struct {
	api      API
	fetcher  Downloader
	cfg      Config
	campaign *dcm.Campaign
}

func New(api API, fetcher Downloader, cfg Config) *Trafficker {
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "US"
		cfg.CountryDartID = 256
	}
	if cfg.ActivationRetry.MaxElapsed == 0 {
		cfg.ActivationRetry = retry.DefaultPolicy()
		cfg.ActivationRetry.MaxElapsed = 2 * time.Hour
	}

	return &Trafficker{api: api, fetcher: fetcher, cfg: cfg}
}

// Run processes every manifest row and then activates all created ads.
// Row-level problems are recorded to the failure writer and never abort the
// batch; only campaign lookup and incomplete activation fail the run.
func (t *Trafficker) Run(ctx context.Context, rows *manifest.Reader, success *manifest.SuccessWriter, failure *manifest.FailureWriter) error {
	campaign, err := t.api.GetCampaign(ctx, t.cfg.CampaignID)
	if err != nil {
		return fmt.Errorf("load campaign %d: %w", t.cfg.CampaignID, err)
	}
	t.campaign = campaign

	var created []int64
	for {
		row, err := rows.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Error("Skipping unreadable manifest record", "error", err)
			_ = failure.Write(manifest.Failure{Err: err})
			continue
		}

		adID, err := t.processRow(ctx, row)
		if err != nil {
			slog.Error("Could not traffic video", "creative", row.CreativeName, "error", err)
			_ = failure.Write(failureFor(row, err))
			continue
		}
		created = append(created, adID)
	}

	slog.Info("Activating ads", "count", len(created))
	return t.ActivateAll(ctx, created, success)
}

// processRow turns one manifest row into a new inactive ad and returns its
// ID. A video referenced by URL is downloaded to the work dir and removed
// again on every exit path.
func (t *Trafficker) processRow(ctx context.Context, row manifest.Row) (int64, error) {
	if row.CreativeName == "" {
		return 0, errors.New("missing Creative name")
	}
	if row.LandingURL == "" {
		return 0, errors.New("missing Landing URL")
	}

	name := manifest.SanitizeCreativeName(row.CreativeName + manifest.VideoExtension)
	slog.Info("Processing creative", "name", name)

	zip, err := manifest.NormalizeZIP(row.ZIP)
	if err != nil {
		return 0, err
	}

	videoFile := row.Filename
	if videoFile == "" {
		if row.FileURL == "" {
			return 0, errors.New("row has neither Filename nor File URL")
		}

		videoFile = filepath.Join(t.cfg.WorkDir, name)
		defer func() { _ = os.Remove(videoFile) }()

		slog.Info("Downloading video", "url", row.FileURL)
		if err := t.fetcher.Fetch(ctx, row.FileURL, videoFile); err != nil {
			return 0, err
		}
	}

	return t.createAd(ctx, name, videoFile, zip, row.LandingURL)
}

// createAd runs the fixed creation chain: upload asset, insert creative,
// associate it with the campaign, insert the geo-targeted ad. There is no
// rollback; resources created before a failing step stay on the platform.
func (t *Trafficker) createAd(ctx context.Context, name, videoFile, zip, landingURL string) (int64, error) {
	asset, err := t.api.UploadAsset(ctx, t.cfg.AdvertiserID, name, videoFile)
	if err != nil {
		return 0, err
	}
	slog.Info("Asset uploaded", "name", asset.Name)

	creative, err := t.api.InsertCreative(ctx, &dcm.Creative{
		AdvertiserID: t.cfg.AdvertiserID,
		Name:         asset.Name,
		Type:         dcm.CreativeTypeVideo,
		Active:       false,
		ClickTags: []*dcm.ClickTag{{
			EventName: dcm.ClickTagEvent,
			Name:      dcm.ClickTagName,
			Value:     landingURL,
		}},
		CreativeAssets: []*dcm.CreativeAsset{{
			AssetIdentifier: asset,
			Role:            dcm.AssetRoleParent,
			Active:          true,
		}},
	})
	if err != nil {
		return 0, err
	}
	slog.Info("Creative added", "id", creative.ID, "name", creative.Name)

	if err := t.api.AssociateCreative(ctx, t.cfg.CampaignID, creative.ID); err != nil {
		return 0, err
	}

	ad := &dcm.Ad{
		Active:       false,
		Name:         adNamePrefix + creative.Name,
		AdvertiserID: t.cfg.AdvertiserID,
		CampaignID:   t.cfg.CampaignID,
		Type:         dcm.AdTypeStandard,
		StartTime:    time.Now().Format("2006-01-02") + "T23:59:59Z",
		EndTime:      t.campaign.EndDate + "T00:00:00Z",
		CreativeRotation: &dcm.CreativeRotation{
			CreativeAssignments: []*dcm.CreativeAssignment{{
				Active:     true,
				CreativeID: creative.ID,
				ClickThroughURL: &dcm.ClickThroughURL{
					DefaultLandingPage:    false,
					CustomClickThroughURL: landingURL,
				},
			}},
			Type:                      dcm.RotationTypeRandom,
			WeightCalculationStrategy: dcm.WeightStrategyEqual,
		},
		DeliverySchedule: &dcm.DeliverySchedule{
			ImpressionRatio: 1,
			Priority:        dcm.PriorityAd01,
		},
		PlacementAssignments: []*dcm.PlacementAssignment{{
			Active:      true,
			PlacementID: t.cfg.PlacementID,
		}},
		GeoTargeting: &dcm.GeoTargeting{
			PostalCodes: []*dcm.PostalCode{{
				Kind:          dcm.KindPostalCode,
				ID:            zip,
				Code:          zip,
				CountryCode:   t.cfg.CountryCode,
				CountryDartID: t.cfg.CountryDartID,
			}},
		},
	}

	inserted, err := t.api.InsertAd(ctx, ad)
	if err != nil {
		return 0, err
	}
	slog.Info("Ad created", "id", inserted.ID, "name", inserted.Name)
	return inserted.ID, nil
}

// ActivateAll activates the given ads, writing each activated ID to the
// success writer as soon as it flips. Ads that cannot be activated yet stay
// pending; passes repeat under the activation retry budget. Each pass walks
// a snapshot and rebuilds the pending set from the leftovers, so no ad is
// skipped by mutation during iteration.
func (t *Trafficker) ActivateAll(ctx context.Context, adIDs []int64, success *manifest.SuccessWriter) error {
	pending := make([]int64, len(adIDs))
	copy(pending, adIDs)

	err := t.cfg.ActivationRetry.Do(func() error {
		var remaining []int64
		for _, id := range pending {
			if !t.activateAd(ctx, id) {
				remaining = append(remaining, id)
				continue
			}
			if err := success.Write(id); err != nil {
				return fmt.Errorf("record activated ad %d: %w", id, err)
			}
		}
		pending = remaining

		if len(pending) > 0 {
			slog.Info("Ads pending activation", "count", len(pending))
			return fmt.Errorf("%w: %d of %d left", ErrAdsPending, len(pending), len(adIDs))
		}
		return nil
	}, func(err error) bool { return errors.Is(err, ErrAdsPending) })

	if err != nil {
		return fmt.Errorf("activate ads: %w", err)
	}
	slog.Info("All ads activated")
	return nil
}

// activateAd flips one ad and its creative to active. Every failure is
// per-ad: logged and reported as false, never propagated.
func (t *Trafficker) activateAd(ctx context.Context, adID int64) bool {
	ad, err := t.api.GetAd(ctx, adID)
	if err != nil {
		slog.Warn("Could not fetch ad", "id", adID, "error", err)
		return false
	}
	if ad.Active {
		slog.Info("Ad already active", "id", adID)
		return true
	}

	var assignments []*dcm.CreativeAssignment
	if ad.CreativeRotation != nil {
		assignments = ad.CreativeRotation.CreativeAssignments
	}
	if len(assignments) != 1 {
		slog.Error("Cannot activate ad", "id", adID, "assignments", len(assignments))
		return false
	}

	creative, err := t.api.GetCreative(ctx, assignments[0].CreativeID)
	if err != nil {
		slog.Warn("Could not fetch creative", "id", assignments[0].CreativeID, "error", err)
		return false
	}

	creative.Active = true
	if _, err := t.api.UpdateCreative(ctx, creative); err != nil {
		slog.Warn("Could not activate creative", "id", creative.ID, "error", err)
		return false
	}

	ad.Active = true
	if _, err := t.api.UpdateAd(ctx, ad); err != nil {
		slog.Warn("Could not activate ad", "id", adID, "error", err)
		return false
	}
	return true
}

func failureFor(row manifest.Row, err error) manifest.Failure {
	return manifest.Failure{
		CreativeName: manifest.SanitizeCreativeName(row.CreativeName + manifest.VideoExtension),
		ZIP:          row.ZIP,
		Source:       row.Source(),
		LandingURL:   row.LandingURL,
		Err:          err,
	}
}
