package places

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SpotFinder/internal/config"
	"SpotFinder/internal/domain"
	"SpotFinder/internal/geo"
	"SpotFinder/internal/ports"
)

const testEndpoint = "https://nominatim.test/search"

var sanFrancisco = domain.Coordinate{Lat: 37.7749, Lng: -122.4194}

func newTestSearcher(t *testing.T) (*NominatimSearcher, *httpmock.MockTransport) {
	t.Helper()

	mock := httpmock.NewMockTransport()
	client := &http.Client{Transport: mock}
	s := NewNominatimSearcher(client, config.PlacesConfig{Endpoint: testEndpoint}, nil)
	return s, mock
}

func TestSearchParsesCandidates(t *testing.T) {
	t.Parallel()
	s, mock := newTestSearcher(t)

	var gotQuery url.Values
	mock.RegisterResponder(http.MethodGet, testEndpoint, func(req *http.Request) (*http.Response, error) {
		gotQuery = req.URL.Query()
		assert.Equal(t, "SpotFinder/1.0", req.Header.Get("User-Agent"))
		return httpmock.NewStringResponse(http.StatusOK, `[
			{"name":"Blue Bottle","display_name":"Blue Bottle, 66, Mint Street, San Francisco","lat":"37.7825","lon":"-122.4078",
			 "address":{"house_number":"66","road":"Mint Street","city":"San Francisco","state":"California","postcode":"94103"}},
			{"name":"","display_name":"Sightglass, 270 7th Street, San Francisco","lat":"37.7770","lon":"-122.4085"},
			{"name":"Nowhere","display_name":"Nowhere","lat":"0","lon":"0"},
			{"name":"Broken","display_name":"Broken, Somewhere","lat":"abc","lon":"-122.4"}
		]`), nil
	})

	candidates, err := s.Search(context.Background(), domain.CategoryCoffee, sanFrancisco, 1000)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "Blue Bottle", candidates[0].Name)
	assert.Equal(t, "66 Mint Street, San Francisco, California, 94103", candidates[0].Address)
	assert.InDelta(t, 37.7825, candidates[0].Coordinate.Lat, 1e-9)
	assert.Equal(t, domain.CategoryCoffee, candidates[0].Category)

	assert.Equal(t, "Sightglass", candidates[1].Name)
	assert.Equal(t, "270 7th Street, San Francisco", candidates[1].Address)

	require.NotNil(t, gotQuery)
	assert.Equal(t, "coffee shop", gotQuery.Get("q"))
	assert.Equal(t, "1", gotQuery.Get("bounded"))
	assert.Equal(t, "15", gotQuery.Get("limit"))
	box := geo.BoundingBox(sanFrancisco, 1000)
	assert.Equal(t, fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", box.MinLng, box.MaxLat, box.MaxLng, box.MinLat), gotQuery.Get("viewbox"))
}

func TestSearchCapsResults(t *testing.T) {
	t.Parallel()
	s, mock := newTestSearcher(t)

	var items []string
	for i := 0; i < 25; i++ {
		items = append(items, fmt.Sprintf(`{"name":"Park %d","display_name":"Park %d, Street %d","lat":"37.77%02d","lon":"-122.41"}`, i, i, i, i))
	}
	mock.RegisterResponder(http.MethodGet, testEndpoint,
		httpmock.NewStringResponder(http.StatusOK, "["+strings.Join(items, ",")+"]"))

	candidates, err := s.Search(context.Background(), domain.CategoryPark, sanFrancisco, 5000)
	require.NoError(t, err)
	assert.Len(t, candidates, MaxResults)
}

func TestSearchReturnsThinResultsAsIs(t *testing.T) {
	t.Parallel()
	s, mock := newTestSearcher(t)

	mock.RegisterResponder(http.MethodGet, testEndpoint,
		httpmock.NewStringResponder(http.StatusOK, `[{"name":"Main Library","display_name":"Main Library, 100 Larkin Street","lat":"37.7790","lon":"-122.4159"}]`))

	candidates, err := s.Search(context.Background(), domain.CategoryLibrary, sanFrancisco, 5000)
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
	assert.Equal(t, 1, mock.GetTotalCallCount(), "no widening retry below the floor")
}

func TestSearchFailuresAreTyped(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		responder httpmock.Responder
	}{
		{"server_error", httpmock.NewStringResponder(http.StatusInternalServerError, "boom")},
		{"rate_limited", httpmock.NewStringResponder(http.StatusTooManyRequests, "slow down")},
		{"malformed_json", httpmock.NewStringResponder(http.StatusOK, "{not json")},
		{"network", httpmock.NewErrorResponder(errors.New("connection reset"))},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, mock := newTestSearcher(t)
			mock.RegisterResponder(http.MethodGet, testEndpoint, tt.responder)

			_, err := s.Search(context.Background(), domain.CategoryCoworking, sanFrancisco, 1000)
			require.Error(t, err)

			var failed *ports.SearchFailedError
			require.ErrorAs(t, err, &failed)
			assert.Equal(t, domain.CategoryCoworking, failed.Category)
		})
	}
}

func TestSearchRejectsBadInput(t *testing.T) {
	t.Parallel()
	s, mock := newTestSearcher(t)

	_, err := s.Search(context.Background(), domain.CategoryCoffee, sanFrancisco, 0)
	assert.ErrorIs(t, err, ports.ErrInvalidRadius)

	_, err = s.Search(context.Background(), domain.CategoryUnknown, sanFrancisco, 100)
	assert.ErrorIs(t, err, ports.ErrUnknownCategory)

	assert.Zero(t, mock.GetTotalCallCount())
}
