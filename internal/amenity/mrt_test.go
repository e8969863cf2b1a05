package amenity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdb-research/resale-cli/internal/spatial"
	"github.com/hdb-research/resale-cli/internal/store"
)

func stationFeature(name, kind string, ring string) string {
	desc := fmt.Sprintf(
		`<center><table><tr><th>NAME</th><td>%s</td></tr><tr><th>TYPE</th><td>%s</td></tr></table></center>`,
		name, kind,
	)
	return fmt.Sprintf(`{
		"type": "Feature",
		"properties": {"Description": %q},
		"geometry": {"type": "Polygon", "coordinates": [%s]}
	}`, desc, ring)
}

func geojsonBody(features ...string) string {
	out := `{"type": "FeatureCollection", "features": [`
	for i, f := range features {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return out + `]}`
}

// newMRTServers wires a download-link endpoint that points at a second
// server returning the given GeoJSON body.
func newMRTServers(t *testing.T, body string) MRTSource {
	t.Helper()
	fileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(fileSrv.Close)

	linkSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		fmt.Fprintf(w, `{"url": %q}`, fileSrv.URL)
	}))
	t.Cleanup(linkSrv.Close)

	return NewMRTSource(WithDownloadLinkURL(linkSrv.URL))
}

func TestStations_ParsesNameAndCentroid(t *testing.T) {
	// Square footprint around (103.80, 1.30): centroid is the middle.
	src := newMRTServers(t, geojsonBody(
		stationFeature("SOMERSET MRT STATION", "MRT",
			`[[103.79, 1.29], [103.81, 1.29], [103.81, 1.31], [103.79, 1.31]]`),
	))

	stations, err := src.Stations(context.Background())
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, "SOMERSET MRT STATION", stations[0].Name)
	assert.InDelta(t, 1.30, stations[0].Lat, 1e-9)
	assert.InDelta(t, 103.80, stations[0].Lon, 1e-9)
}

func TestStations_SkipsLRT(t *testing.T) {
	src := newMRTServers(t, geojsonBody(
		stationFeature("BUKIT PANJANG LRT STATION", "LRT",
			`[[103.76, 1.37], [103.77, 1.37], [103.77, 1.38]]`),
		stationFeature("JURONG EAST MRT STATION", "MRT",
			`[[103.74, 1.33], [103.75, 1.33], [103.75, 1.34]]`),
	))

	stations, err := src.Stations(context.Background())
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, "JURONG EAST MRT STATION", stations[0].Name)
}

func TestStations_KeepsDuplicateInterchangeNames(t *testing.T) {
	// One polygon per line at an interchange: both survive.
	src := newMRTServers(t, geojsonBody(
		stationFeature("CITY HALL MRT STATION", "MRT",
			`[[103.851, 1.293], [103.852, 1.293], [103.852, 1.294]]`),
		stationFeature("CITY HALL MRT STATION", "MRT",
			`[[103.852, 1.292], [103.853, 1.292], [103.853, 1.293]]`),
	))

	stations, err := src.Stations(context.Background())
	require.NoError(t, err)
	assert.Len(t, stations, 2)
}

func TestStations_AllLRTIsError(t *testing.T) {
	src := newMRTServers(t, geojsonBody(
		stationFeature("SENJA LRT STATION", "LRT",
			`[[103.76, 1.38], [103.77, 1.38], [103.77, 1.39]]`),
	))

	_, err := src.Stations(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no MRT stations")
}

func TestStations_LinkErrorPropagates(t *testing.T) {
	linkSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer linkSrv.Close()

	src := NewMRTSource(WithDownloadLinkURL(linkSrv.URL))
	_, err := src.Stations(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

type staticSource []spatial.Amenity

func (s staticSource) Stations(context.Context) ([]spatial.Amenity, error) {
	return s, nil
}

func newSeededStore(t *testing.T, stations []spatial.Amenity) store.Store {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	if len(stations) > 0 {
		require.NoError(t, st.ReplaceAmenities(context.Background(), store.AmenityMRT, stations))
	}
	return st
}

func TestSyncMRT_ReplacesWhenGrown(t *testing.T) {
	st := newSeededStore(t, []spatial.Amenity{{Name: "OLD", Lat: 1, Lon: 103}})

	fetched := staticSource{
		{Name: "A", Lat: 1.1, Lon: 103.1},
		{Name: "B", Lat: 1.2, Lon: 103.2},
	}
	require.NoError(t, SyncMRT(context.Background(), st, fetched))

	got, err := st.LoadAmenities(context.Background(), store.AmenityMRT)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSyncMRT_IgnoresShrunkenDataset(t *testing.T) {
	seed := []spatial.Amenity{
		{Name: "A", Lat: 1.1, Lon: 103.1},
		{Name: "B", Lat: 1.2, Lon: 103.2},
	}
	st := newSeededStore(t, seed)

	require.NoError(t, SyncMRT(context.Background(), st, staticSource{{Name: "ONLY", Lat: 1, Lon: 103}}))

	got, err := st.LoadAmenities(context.Background(), store.AmenityMRT)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Name)
}

func TestSyncMRT_EqualSizeIsNoop(t *testing.T) {
	seed := []spatial.Amenity{{Name: "A", Lat: 1.1, Lon: 103.1}}
	st := newSeededStore(t, seed)

	require.NoError(t, SyncMRT(context.Background(), st, staticSource{{Name: "RENAMED", Lat: 1.3, Lon: 103.3}}))

	got, err := st.LoadAmenities(context.Background(), store.AmenityMRT)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Name)
}
