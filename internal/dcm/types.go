package dcm

// Resource bodies follow the Campaign Manager 360 (dfareporting v4) JSON
// schema. Numeric IDs travel as strings on the wire, hence the ,string tags.
// Only the fields this tool reads or writes are declared.

const (
	AssetTypeVideo      = "VIDEO"
	AssetRoleParent     = "PARENT_VIDEO"
	CreativeTypeVideo   = "INSTREAM_VIDEO"
	AdTypeStandard      = "AD_SERVING_STANDARD_AD"
	RotationTypeRandom  = "CREATIVE_ROTATION_TYPE_RANDOM"
	WeightStrategyEqual = "WEIGHT_STRATEGY_EQUAL"
	PriorityAd01        = "AD_PRIORITY_01"
	ClickTagEvent       = "exit"
	ClickTagName        = "click_tag"
	KindPostalCode      = "dfareporting#postalCode"
)

type Campaign struct {
	ID           int64  `json:"id,string,omitempty"`
	AdvertiserID int64  `json:"advertiserId,string,omitempty"`
	Name         string `json:"name,omitempty"`
	StartDate    string `json:"startDate,omitempty"`
	EndDate      string `json:"endDate,omitempty"`
}

// AssetIdentifier names an uploaded creative asset. The platform may rename
// the asset on collision, so the response identifier is authoritative.
type AssetIdentifier struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

type CreativeAssetMetadata struct {
	AssetIdentifier *AssetIdentifier `json:"assetIdentifier,omitempty"`
}

type ClickTag struct {
	EventName string `json:"eventName,omitempty"`
	Name      string `json:"name,omitempty"`
	Value     string `json:"value,omitempty"`
}

type CreativeAsset struct {
	AssetIdentifier *AssetIdentifier `json:"assetIdentifier,omitempty"`
	Role            string           `json:"role,omitempty"`
	Active          bool             `json:"active"`
}

type Creative struct {
	ID             int64            `json:"id,string,omitempty"`
	AdvertiserID   int64            `json:"advertiserId,string,omitempty"`
	Name           string           `json:"name,omitempty"`
	Type           string           `json:"type,omitempty"`
	Active         bool             `json:"active"`
	ClickTags      []*ClickTag      `json:"clickTags,omitempty"`
	CreativeAssets []*CreativeAsset `json:"creativeAssets,omitempty"`
}

type ClickThroughURL struct {
	DefaultLandingPage    bool   `json:"defaultLandingPage"`
	CustomClickThroughURL string `json:"customClickThroughUrl,omitempty"`
}

type CreativeAssignment struct {
	Active          bool             `json:"active"`
	CreativeID      int64            `json:"creativeId,string,omitempty"`
	ClickThroughURL *ClickThroughURL `json:"clickThroughUrl,omitempty"`
}

type CreativeRotation struct {
	CreativeAssignments       []*CreativeAssignment `json:"creativeAssignments,omitempty"`
	Type                      string                `json:"type,omitempty"`
	WeightCalculationStrategy string                `json:"weightCalculationStrategy,omitempty"`
}

type DeliverySchedule struct {
	ImpressionRatio int64  `json:"impressionRatio,string,omitempty"`
	Priority        string `json:"priority,omitempty"`
}

type PlacementAssignment struct {
	Active      bool  `json:"active"`
	PlacementID int64 `json:"placementId,string,omitempty"`
}

type PostalCode struct {
	Kind          string `json:"kind,omitempty"`
	ID            string `json:"id,omitempty"`
	Code          string `json:"code,omitempty"`
	CountryCode   string `json:"countryCode,omitempty"`
	CountryDartID int64  `json:"countryDartId,string,omitempty"`
}

type GeoTargeting struct {
	PostalCodes []*PostalCode `json:"postalCodes,omitempty"`
}

type Ad struct {
	ID                   int64                  `json:"id,string,omitempty"`
	Name                 string                 `json:"name,omitempty"`
	Active               bool                   `json:"active"`
	AdvertiserID         int64                  `json:"advertiserId,string,omitempty"`
	CampaignID           int64                  `json:"campaignId,string,omitempty"`
	Type                 string                 `json:"type,omitempty"`
	StartTime            string                 `json:"startTime,omitempty"`
	EndTime              string                 `json:"endTime,omitempty"`
	CreativeRotation     *CreativeRotation      `json:"creativeRotation,omitempty"`
	DeliverySchedule     *DeliverySchedule      `json:"deliverySchedule,omitempty"`
	PlacementAssignments []*PlacementAssignment `json:"placementAssignments,omitempty"`
	GeoTargeting         *GeoTargeting          `json:"geoTargeting,omitempty"`
}
