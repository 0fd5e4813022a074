// Package dcm is a thin client for the Campaign Manager 360 trafficking API,
// covering the handful of resources this tool needs: campaigns, creative
// assets, creatives, campaign-creative associations, and ads. Every call is
// wrapped in an exponential-backoff retry that only retries server-side
// (5xx) failures.
package dcm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"

	"google.golang.org/api/googleapi"

	"ziptraffic/pkg/retry"
)

const (
	defaultBaseURL   = "https://dfareporting.googleapis.com/dfareporting/v4"
	defaultUploadURL = "https://dfareporting.googleapis.com/upload/dfareporting/v4"
)

type Options struct {
	// BaseURL and UploadURL override the API endpoints, mainly for tests.
	BaseURL   string
	UploadURL string
	Retry     retry.Policy
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	uploadURL  string
	profileID  int64
	retry      retry.Policy
}

// NewClient wraps an authorized HTTP client (see Auth.Client) for the given
// user profile.
func NewClient(httpClient *http.Client, profileID int64, opts Options) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.UploadURL == "" {
		opts.UploadURL = defaultUploadURL
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    opts.BaseURL,
		uploadURL:  opts.UploadURL,
		profileID:  profileID,
		retry:      opts.Retry,
	}
}

// IsServerError reports whether err is a status-coded API error in the 5xx
// range. Anything else, including transport failures, is terminal.
func IsServerError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code >= 500 && apiErr.Code < 600 {
		slog.Warn("Server error, retrying", "code", apiErr.Code)
		return true
	}
	return false
}

func (c *Client) GetCampaign(ctx context.Context, id int64) (*Campaign, error) {
	var list struct {
		Campaigns []*Campaign `json:"campaigns"`
	}
	if err := c.getList(ctx, "campaigns", id, &list); err != nil {
		return nil, err
	}
	if len(list.Campaigns) != 1 {
		return nil, fmt.Errorf("expected exactly one campaign with ID %d, found %d", id, len(list.Campaigns))
	}
	return list.Campaigns[0], nil
}

func (c *Client) GetAd(ctx context.Context, id int64) (*Ad, error) {
	var list struct {
		Ads []*Ad `json:"ads"`
	}
	if err := c.getList(ctx, "ads", id, &list); err != nil {
		return nil, err
	}
	if len(list.Ads) != 1 {
		return nil, fmt.Errorf("expected exactly one ad with ID %d, found %d", id, len(list.Ads))
	}
	return list.Ads[0], nil
}

func (c *Client) GetCreative(ctx context.Context, id int64) (*Creative, error) {
	var list struct {
		Creatives []*Creative `json:"creatives"`
	}
	if err := c.getList(ctx, "creatives", id, &list); err != nil {
		return nil, err
	}
	if len(list.Creatives) != 1 {
		return nil, fmt.Errorf("expected exactly one creative with ID %d, found %d", id, len(list.Creatives))
	}
	return list.Creatives[0], nil
}

// UploadAsset sends the video file as a new creative asset under the given
// advertiser. The returned identifier carries the name the platform actually
// assigned, which may differ from the requested one.
func (c *Client) UploadAsset(ctx context.Context, advertiserID int64, name, videoFile string) (*AssetIdentifier, error) {
	url := fmt.Sprintf("%s/userprofiles/%d/creativeAssets/%d/creativeAssets?uploadType=multipart",
		c.uploadURL, c.profileID, advertiserID)

	var meta CreativeAssetMetadata
	err := c.retry.Do(func() error {
		meta = CreativeAssetMetadata{}
		return c.uploadOnce(ctx, url, name, videoFile, &meta)
	}, IsServerError)
	if err != nil {
		return nil, fmt.Errorf("upload asset %q: %w", name, err)
	}
	if meta.AssetIdentifier == nil {
		return nil, fmt.Errorf("upload asset %q: response has no assetIdentifier", name)
	}
	return meta.AssetIdentifier, nil
}

func (c *Client) uploadOnce(ctx context.Context, url, name, videoFile string, out *CreativeAssetMetadata) error {
	f, err := os.Open(videoFile)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return err
	}
	metadata := CreativeAssetMetadata{
		AssetIdentifier: &AssetIdentifier{Name: name, Type: AssetTypeVideo},
	}
	if err := json.NewEncoder(metaPart).Encode(metadata); err != nil {
		return err
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", videoMIMEType(videoFile))
	mediaPart, err := writer.CreatePart(mediaHeader)
	if err != nil {
		return err
	}
	if _, err := io.Copy(mediaPart, f); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := googleapi.CheckResponse(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) InsertCreative(ctx context.Context, creative *Creative) (*Creative, error) {
	url := fmt.Sprintf("%s/userprofiles/%d/creatives", c.baseURL, c.profileID)
	created := &Creative{}
	if err := c.do(ctx, http.MethodPost, url, creative, created); err != nil {
		return nil, fmt.Errorf("insert creative %q: %w", creative.Name, err)
	}
	return created, nil
}

// AssociateCreative links a creative to a campaign. An ad in the campaign
// cannot reference the creative until this association exists.
func (c *Client) AssociateCreative(ctx context.Context, campaignID, creativeID int64) error {
	url := fmt.Sprintf("%s/userprofiles/%d/campaigns/%d/campaignCreativeAssociations",
		c.baseURL, c.profileID, campaignID)
	association := struct {
		CreativeID int64 `json:"creativeId,string"`
	}{CreativeID: creativeID}

	if err := c.do(ctx, http.MethodPost, url, association, nil); err != nil {
		return fmt.Errorf("associate creative %d with campaign %d: %w", creativeID, campaignID, err)
	}
	return nil
}

func (c *Client) InsertAd(ctx context.Context, ad *Ad) (*Ad, error) {
	url := fmt.Sprintf("%s/userprofiles/%d/ads", c.baseURL, c.profileID)
	created := &Ad{}
	if err := c.do(ctx, http.MethodPost, url, ad, created); err != nil {
		return nil, fmt.Errorf("insert ad %q: %w", ad.Name, err)
	}
	return created, nil
}

func (c *Client) UpdateAd(ctx context.Context, ad *Ad) (*Ad, error) {
	url := fmt.Sprintf("%s/userprofiles/%d/ads", c.baseURL, c.profileID)
	updated := &Ad{}
	if err := c.do(ctx, http.MethodPut, url, ad, updated); err != nil {
		return nil, fmt.Errorf("update ad %d: %w", ad.ID, err)
	}
	return updated, nil
}

func (c *Client) UpdateCreative(ctx context.Context, creative *Creative) (*Creative, error) {
	url := fmt.Sprintf("%s/userprofiles/%d/creatives", c.baseURL, c.profileID)
	updated := &Creative{}
	if err := c.do(ctx, http.MethodPut, url, creative, updated); err != nil {
		return nil, fmt.Errorf("update creative %d: %w", creative.ID, err)
	}
	return updated, nil
}

func (c *Client) getList(ctx context.Context, resource string, id int64, out any) error {
	url := fmt.Sprintf("%s/userprofiles/%d/%s?ids=%d", c.baseURL, c.profileID, resource, id)
	if err := c.do(ctx, http.MethodGet, url, nil, out); err != nil {
		return fmt.Errorf("get %s %d: %w", resource, id, err)
	}
	return nil
}

// do runs one JSON request under the retry policy. The request is rebuilt on
// every attempt so the body can be resent.
func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	return c.retry.Do(func() error {
		return c.doOnce(ctx, method, url, body, out)
	}, IsServerError)
}

func (c *Client) doOnce(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := googleapi.CheckResponse(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func videoMIMEType(videoFile string) string {
	if t := mime.TypeByExtension(filepath.Ext(videoFile)); t != "" {
		return t
	}
	return "application/octet-stream"
}
