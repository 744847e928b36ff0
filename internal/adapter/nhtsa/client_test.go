package nhtsa

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/drive-risk-ingest/internal/domain"
	"github.com/couchcryptid/drive-risk-ingest/internal/observability"
)

func newTestClient(baseURL string) *Client {
	return NewClient(baseURL, 2*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
}

// ratingsHandler serves the two-step SafetyRatings lookup plus recalls.
func ratingsHandler(overall, rollover, frontal, side string, recalls int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/SafetyRatings/modelyear/"):
			fmt.Fprint(w, `{"Results":[{"VehicleId":12345,"VehicleDescription":"2020 Honda Civic 4 DR FWD"}]}`)
		case r.URL.Path == "/SafetyRatings/VehicleId/12345":
			fmt.Fprintf(w, `{"Results":[{"VehicleId":12345,"OverallRating":%q,"RolloverRating":%q,"FrontalCrashRating":%q,"SideCrashRating":%q}]}`,
				overall, rollover, frontal, side)
		case r.URL.Path == "/recalls/recallsByVehicle":
			campaigns := make([]string, 0, recalls)
			for i := 0; i < recalls; i++ {
				campaigns = append(campaigns, fmt.Sprintf(`{"NHTSACampaignNumber":"20V%03d000"}`, i))
			}
			fmt.Fprintf(w, `{"results":[%s]}`, strings.Join(campaigns, ","))
		default:
			http.NotFound(w, r)
		}
	}
}

func TestClient_Rate_LiveRating(t *testing.T) {
	srv := httptest.NewServer(ratingsHandler("5", "4", "5", "5", 2))
	defer srv.Close()

	record := newTestClient(srv.URL).Rate(context.Background(), 2020, "Honda", "Civic")

	assert.Equal(t, domain.SourceLive, record.Source)
	require.NotNil(t, record.Overall)
	assert.Equal(t, 5, *record.Overall)
	require.NotNil(t, record.Rollover)
	assert.Equal(t, 4, *record.Rollover)
	assert.Equal(t, 2, record.RecallCount)
	assert.Equal(t, "Honda", record.Make)
	assert.Equal(t, 2020, record.Year)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, -0.15, record.RiskImpact.PremiumAdjustment)
	assert.Equal(t, 20.0, record.RiskImpact.SafetyScoreBoost)
}

func TestClient_Rate_NotRatedUsesDefault(t *testing.T) {
	srv := httptest.NewServer(ratingsHandler("Not Rated", "Not Rated", "Not Rated", "Not Rated", 0))
	defer srv.Close()

	record := newTestClient(srv.URL).Rate(context.Background(), 1998, "Acme", "Roadster")

	assert.Equal(t, domain.SourceDefault, record.Source)
	require.NotNil(t, record.Overall)
	assert.Equal(t, 4, *record.Overall)
	assert.Equal(t, -0.08, record.RiskImpact.PremiumAdjustment)
	assert.Equal(t, 10.0, record.RiskImpact.SafetyScoreBoost)
}

func TestClient_Rate_NoSearchResultsUsesDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Results":[]}`)
	}))
	defer srv.Close()

	record := newTestClient(srv.URL).Rate(context.Background(), 2020, "Honda", "Civic")

	assert.Equal(t, domain.SourceDefault, record.Source)
	require.NotNil(t, record.Overall)
	assert.Equal(t, 4, *record.Overall)
	assert.Zero(t, record.RecallCount)
}

func TestClient_Rate_ServerErrorUsesErrorFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	record := newTestClient(srv.URL).Rate(context.Background(), 2020, "Honda", "Civic")

	assert.Equal(t, domain.SourceErrorFallback, record.Source)
	require.NotNil(t, record.Overall)
	assert.Equal(t, 3, *record.Overall)
	require.NotNil(t, record.Side)
	assert.Equal(t, 3, *record.Side)
	assert.Zero(t, record.RiskImpact.PremiumAdjustment, "3 stars is premium-neutral")
	assert.Zero(t, record.RiskImpact.SafetyScoreBoost)
}

func TestClient_Rate_UnreachableServerUsesErrorFallback(t *testing.T) {
	record := newTestClient("http://127.0.0.1:1").Rate(context.Background(), 2020, "Honda", "Civic")

	assert.Equal(t, domain.SourceErrorFallback, record.Source)
	require.NotNil(t, record.Overall)
	assert.Equal(t, 3, *record.Overall)
}

func TestClient_Rate_RecallFailureCountsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/recalls/recallsByVehicle" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		ratingsHandler("5", "4", "5", "5", 0)(w, r)
	}))
	defer srv.Close()

	record := newTestClient(srv.URL).Rate(context.Background(), 2020, "Honda", "Civic")

	assert.Equal(t, domain.SourceLive, record.Source, "recall failure should not degrade the rating")
	assert.Zero(t, record.RecallCount)
}

func TestClient_Rate_SearchPathUppercasesVehicle(t *testing.T) {
	var searchPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/SafetyRatings/modelyear/") {
			searchPath = r.URL.Path
		}
		ratingsHandler("5", "5", "5", "5", 0)(w, r)
	}))
	defer srv.Close()

	newTestClient(srv.URL).Rate(context.Background(), 2020, "honda", "civic")

	assert.Equal(t, "/SafetyRatings/modelyear/2020/make/HONDA/model/CIVIC", searchPath)
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *int
	}{
		{"five stars", "5", domain.Stars(5)},
		{"one star", "1", domain.Stars(1)},
		{"not rated", "Not Rated", nil},
		{"empty", "", nil},
		{"zero out of range", "0", nil},
		{"six out of range", "6", nil},
		{"whitespace padded", " 4 ", domain.Stars(4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseRating(tt.input)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}
