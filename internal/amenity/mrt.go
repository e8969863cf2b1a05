// Package amenity maintains the transit station and shopping mall coordinate
// sets the spatial index is built from.
package amenity

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/hdb-research/resale-cli/internal/spatial"
	"github.com/hdb-research/resale-cli/internal/store"
)

// The station dataset is served as a GeoJSON download behind a short-lived
// presigned link; the direct API endpoint has been flaky, so this mirrors
// the two-step flow the dataset portal itself uses.
const defaultDownloadLinkURL = "https://kjo15bc7zd.execute-api.ap-southeast-1.amazonaws.com/api/public/resources/d_af90df38d609c426c73bc9acea366786/generate-download-link"

// MRTSource fetches the current transit station coordinate set.
type MRTSource interface {
	Stations(ctx context.Context) ([]spatial.Amenity, error)
}

// MRTOption configures the HTTP source.
type MRTOption func(*mrtHTTPSource)

// WithDownloadLinkURL overrides the generate-download-link endpoint.
func WithDownloadLinkURL(u string) MRTOption {
	return func(s *mrtHTTPSource) {
		s.downloadLinkURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) MRTOption {
	return func(s *mrtHTTPSource) {
		s.http = hc
	}
}

type mrtHTTPSource struct {
	downloadLinkURL string
	http            *http.Client
}

// NewMRTSource creates the production station source.
func NewMRTSource(opts ...MRTOption) MRTSource {
	s := &mrtHTTPSource{
		downloadLinkURL: defaultDownloadLinkURL,
		http:            &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *mrtHTTPSource) Stations(ctx context.Context) ([]spatial.Amenity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.downloadLinkURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "amenity: create download-link request")
	}
	req.Header.Set("Accept", "*/*")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "amenity: download-link request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("amenity: download-link returned status %d", resp.StatusCode)
	}

	var link struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&link); err != nil {
		return nil, eris.Wrap(err, "amenity: decode download link")
	}
	if link.URL == "" {
		return nil, eris.New("amenity: empty download link")
	}

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, link.URL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "amenity: create geojson request")
	}
	dlResp, err := s.http.Do(dlReq)
	if err != nil {
		return nil, eris.Wrap(err, "amenity: geojson request")
	}
	defer dlResp.Body.Close()
	if dlResp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("amenity: geojson download returned status %d", dlResp.StatusCode)
	}

	var fc geojson.FeatureCollection
	if err := json.NewDecoder(dlResp.Body).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "amenity: decode geojson")
	}
	return stationsFromFeatures(fc.Features)
}

// stationsFromFeatures extracts MRT stations from the dataset's feature
// collection. LRT stations are skipped; duplicated names are kept so that
// interchange stations with one exit polygon per line stay distinct points.
func stationsFromFeatures(features []*geojson.Feature) ([]spatial.Amenity, error) {
	var stations []spatial.Amenity
	for i, f := range features {
		name, kind, err := parseStationDescription(f.Properties)
		if err != nil {
			return nil, eris.Wrapf(err, "amenity: feature %d", i)
		}
		if kind == "LRT" || name == "" {
			continue
		}

		lat, lon, err := polygonCentroid(f.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "amenity: feature %d (%s)", i, name)
		}
		stations = append(stations, spatial.Amenity{Name: name, Lat: lat, Lon: lon})
	}
	if len(stations) == 0 {
		return nil, eris.New("amenity: no MRT stations in dataset")
	}
	return stations, nil
}

// parseStationDescription pulls NAME and TYPE out of the HTML attribute
// table embedded in each feature's Description property.
func parseStationDescription(props map[string]any) (name, kind string, err error) {
	desc, _ := props["Description"].(string)
	if desc == "" {
		return "", "", eris.New("missing Description property")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(desc))
	if err != nil {
		return "", "", eris.Wrap(err, "parse description html")
	}

	doc.Find("th").Each(func(_ int, th *goquery.Selection) {
		switch strings.TrimSpace(th.Text()) {
		case "NAME":
			name = strings.TrimSpace(th.NextFiltered("td").Text())
		case "TYPE":
			kind = strings.TrimSpace(th.NextFiltered("td").Text())
		}
	})
	return name, kind, nil
}

// polygonCentroid averages the vertices of the station footprint's outer
// ring. GeoJSON coordinates are (longitude, latitude).
func polygonCentroid(g geom.T) (lat, lon float64, err error) {
	poly, ok := g.(*geom.Polygon)
	if !ok || poly.NumLinearRings() == 0 {
		return 0, 0, eris.Errorf("geometry is %T, want polygon", g)
	}

	ring := poly.LinearRing(0).Coords()
	if len(ring) == 0 {
		return 0, 0, eris.New("empty polygon ring")
	}
	var sumLat, sumLon float64
	for _, c := range ring {
		sumLon += c.X()
		sumLat += c.Y()
	}
	n := float64(len(ring))
	return sumLat / n, sumLon / n, nil
}

// SyncMRT refreshes the stored station set. The stored set is only replaced
// when the fetched set has grown; a shrunken upstream response is treated as
// a partial dataset and ignored.
func SyncMRT(ctx context.Context, st store.Store, source MRTSource) error {
	stations, err := source.Stations(ctx)
	if err != nil {
		return err
	}

	existing, err := st.CountAmenities(ctx, store.AmenityMRT)
	if err != nil {
		return err
	}
	if len(stations) <= existing {
		zap.L().Info("station set unchanged",
			zap.Int("stored", existing),
			zap.Int("fetched", len(stations)))
		return nil
	}

	zap.L().Info("updating station set",
		zap.Int("stored", existing),
		zap.Int("fetched", len(stations)))
	return st.ReplaceAmenities(ctx, store.AmenityMRT, stations)
}
