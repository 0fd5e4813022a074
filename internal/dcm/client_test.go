package dcm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"ziptraffic/pkg/retry"
)

func newTestClient(serverURL string) *Client {
	return NewClient(http.DefaultClient, 123, Options{
		BaseURL:   serverURL,
		UploadURL: serverURL,
		Retry: retry.Policy{
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2.0,
			MaxElapsed:   time.Second,
		},
	})
}

func TestGetAd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/userprofiles/123/ads" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("ids") != "456" {
			t.Errorf("ids = %q, want 456", r.URL.Query().Get("ids"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ads": []*Ad{{ID: 456, Name: "AD_test", Active: true}},
		})
	}))
	defer server.Close()

	ad, err := newTestClient(server.URL).GetAd(context.Background(), 456)
	if err != nil {
		t.Fatalf("GetAd() error: %v", err)
	}
	if ad.ID != 456 || ad.Name != "AD_test" || !ad.Active {
		t.Errorf("ad = %+v", ad)
	}
}

func TestGetAdNotExactlyOne(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ads": []*Ad{}})
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).GetAd(context.Background(), 456); err == nil {
		t.Error("GetAd() with zero results should fail")
	}
}

func TestGetCampaignRetriesServerErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"campaigns": []*Campaign{{ID: 9, EndDate: "2026-12-31"}},
		})
	}))
	defer server.Close()

	campaign, err := newTestClient(server.URL).GetCampaign(context.Background(), 9)
	if err != nil {
		t.Fatalf("GetCampaign() error: %v", err)
	}
	if campaign.EndDate != "2026-12-31" {
		t.Errorf("EndDate = %q", campaign.EndDate)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetAd(context.Background(), 456)
	if err == nil {
		t.Fatal("GetAd() should fail on 404")
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		t.Errorf("error = %v, want googleapi.Error with code 404", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d, want 1 (no retry)", got)
	}
}

func TestUploadAsset(t *testing.T) {
	videoFile := filepath.Join(t.TempDir(), "spot.mp4")
	if err := os.WriteFile(videoFile, []byte("fake video bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/userprofiles/123/creativeAssets/77/creativeAssets" {
			t.Errorf("path = %q", r.URL.Path)
		}

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/related" {
			t.Fatalf("Content-Type = %q (%v)", r.Header.Get("Content-Type"), err)
		}

		mr := multipart.NewReader(r.Body, params["boundary"])

		metaPart, err := mr.NextPart()
		if err != nil {
			t.Fatalf("metadata part: %v", err)
		}
		var meta CreativeAssetMetadata
		if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
			t.Fatalf("decode metadata: %v", err)
		}
		if meta.AssetIdentifier.Name != "spot.mp4" || meta.AssetIdentifier.Type != AssetTypeVideo {
			t.Errorf("assetIdentifier = %+v", meta.AssetIdentifier)
		}

		mediaPart, err := mr.NextPart()
		if err != nil {
			t.Fatalf("media part: %v", err)
		}
		data, _ := io.ReadAll(mediaPart)
		if string(data) != "fake video bytes" {
			t.Errorf("media = %q", data)
		}

		// Collision: the platform hands back a renamed asset.
		_ = json.NewEncoder(w).Encode(CreativeAssetMetadata{
			AssetIdentifier: &AssetIdentifier{Name: "spot_1.mp4", Type: AssetTypeVideo},
		})
	}))
	defer server.Close()

	asset, err := newTestClient(server.URL).UploadAsset(context.Background(), 77, "spot.mp4", videoFile)
	if err != nil {
		t.Fatalf("UploadAsset() error: %v", err)
	}
	if asset.Name != "spot_1.mp4" {
		t.Errorf("asset name = %q, want the server-assigned spot_1.mp4", asset.Name)
	}
}

func TestUploadAssetMissingFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be reached")
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).UploadAsset(context.Background(), 77, "x.mp4", "/does/not/exist.mp4")
	if err == nil {
		t.Error("UploadAsset() with missing file should fail")
	}
}

func TestAssociateCreative(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q", r.Method)
		}
		if r.URL.Path != "/userprofiles/123/campaigns/42/campaignCreativeAssociations" {
			t.Errorf("path = %q", r.URL.Path)
		}

		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["creativeId"] != "7" {
			t.Errorf("creativeId = %q, want \"7\"", body["creativeId"])
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer server.Close()

	if err := newTestClient(server.URL).AssociateCreative(context.Background(), 42, 7); err != nil {
		t.Fatalf("AssociateCreative() error: %v", err)
	}
}

func TestInsertAd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/userprofiles/123/ads" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}

		var ad Ad
		_ = json.NewDecoder(r.Body).Decode(&ad)
		if ad.Active {
			t.Error("new ads must be inserted inactive")
		}
		if ad.GeoTargeting == nil || len(ad.GeoTargeting.PostalCodes) != 1 {
			t.Errorf("geoTargeting = %+v", ad.GeoTargeting)
		}

		ad.ID = 111
		_ = json.NewEncoder(w).Encode(&ad)
	}))
	defer server.Close()

	ad := &Ad{
		Name:       "AD_spot.mp4",
		CampaignID: 42,
		GeoTargeting: &GeoTargeting{
			PostalCodes: []*PostalCode{{Kind: KindPostalCode, ID: "94105", Code: "94105", CountryCode: "US", CountryDartID: 256}},
		},
	}

	created, err := newTestClient(server.URL).InsertAd(context.Background(), ad)
	if err != nil {
		t.Fatalf("InsertAd() error: %v", err)
	}
	if created.ID != 111 {
		t.Errorf("ID = %d, want 111", created.ID)
	}
}

func TestUpdateCreativeUsesPut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/userprofiles/123/creatives" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}

		var creative Creative
		_ = json.NewDecoder(r.Body).Decode(&creative)
		if !creative.Active {
			t.Error("update should carry active=true")
		}
		_ = json.NewEncoder(w).Encode(&creative)
	}))
	defer server.Close()

	updated, err := newTestClient(server.URL).UpdateCreative(context.Background(), &Creative{ID: 7, Active: true})
	if err != nil {
		t.Fatalf("UpdateCreative() error: %v", err)
	}
	if updated.ID != 7 {
		t.Errorf("ID = %d, want 7", updated.ID)
	}
}

func TestIsServerError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serviceUnavailable", &googleapi.Error{Code: 503}, true},
		{"internalError", &googleapi.Error{Code: 500}, true},
		{"notFound", &googleapi.Error{Code: 404}, false},
		{"badRequest", &googleapi.Error{Code: 400}, false},
		{"plainError", errors.New("connection refused"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsServerError(tt.err); got != tt.want {
				t.Errorf("IsServerError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
