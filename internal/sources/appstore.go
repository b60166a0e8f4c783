package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// AppStoreLookupURL is the iTunes lookup endpoint.
const AppStoreLookupURL = "https://itunes.apple.com/lookup"

// AppInfo is the subset of an iTunes lookup result the market pipeline reads.
type AppInfo struct {
	TrackID                   int64  `json:"trackId"`
	TrackName                 string `json:"trackName"`
	TrackViewURL              string `json:"trackViewUrl"`
	Version                   string `json:"version"`
	ReleaseNotes              string `json:"releaseNotes"`
	CurrentVersionReleaseDate string `json:"currentVersionReleaseDate"`
}

// AppStore looks up App Store listings.
type AppStore struct {
	HTTP     *HTTP
	Endpoint string
}

// Lookup returns the listing for trackID in country. An empty result set is
// an error.
func (a *AppStore) Lookup(ctx context.Context, trackID int64, country string) (*AppInfo, error) {
	endpoint := a.Endpoint
	if endpoint == "" {
		endpoint = AppStoreLookupURL
	}
	if country == "" {
		country = "kr"
	}
	params := url.Values{
		"id":      {strconv.FormatInt(trackID, 10)},
		"country": {country},
	}
	var payload struct {
		Results []AppInfo `json:"results"`
	}
	if err := a.HTTP.GetJSON(ctx, endpoint, params, nil, &payload); err != nil {
		return nil, err
	}
	if len(payload.Results) == 0 {
		return nil, fmt.Errorf("app store lookup returned 0 results: trackId=%d", trackID)
	}
	return &payload.Results[0], nil
}
