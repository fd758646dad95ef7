package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskguard/server/internal/model"
)

func TestClientLookup_success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/203.0.113.10", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "success",
			"country": "Germany",
			"city": "Berlin",
			"isp": "Deutsche Telekom",
			"lat": 52.52,
			"lon": 13.405
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	g := c.Lookup(context.Background(), "203.0.113.10")

	require.NotNil(t, g.Country)
	assert.Equal(t, "Germany", *g.Country)
	require.NotNil(t, g.City)
	assert.Equal(t, "Berlin", *g.City)
	require.NotNil(t, g.ISP)
	assert.Equal(t, "Deutsche Telekom", *g.ISP)
	require.True(t, g.HasCoordinates())
	assert.InDelta(t, 52.52, *g.Latitude, 1e-9)
	assert.InDelta(t, 13.405, *g.Longitude, 1e-9)
}

func TestClientLookup_partialFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "success", "country": "Germany"}`))
	}))
	defer srv.Close()

	g := NewClient(srv.URL).Lookup(context.Background(), "203.0.113.10")

	require.NotNil(t, g.Country)
	assert.Equal(t, "Germany", *g.Country)
	assert.Nil(t, g.City)
	assert.Nil(t, g.ISP)
	assert.False(t, g.HasCoordinates())
}

func TestClientLookup_failureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "fail", "message": "private range"}`))
	}))
	defer srv.Close()

	g := NewClient(srv.URL).Lookup(context.Background(), "192.168.0.1")
	assert.Equal(t, "", deref(g.Country))
	assert.Nil(t, g.Country)
	assert.False(t, g.HasCoordinates())
}

func TestClientLookup_serverError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewClient(srv.URL).Lookup(context.Background(), "203.0.113.10")
	assert.Nil(t, g.Country)
}

func TestClientLookup_malformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	g := NewClient(srv.URL).Lookup(context.Background(), "203.0.113.10")
	assert.Nil(t, g.Country)
}

func TestClientLookup_unreachableHost(t *testing.T) {
	// Closed server: transport error must degrade to an empty result.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	g := NewClient(srv.URL).Lookup(context.Background(), "203.0.113.10")
	assert.Nil(t, g.Country)
	assert.False(t, g.HasCoordinates())
}

func TestStaticLookup(t *testing.T) {
	country := "Japan"
	s := NewStatic(map[string]model.Geolocation{"1.2.3.4": {Country: &country}})

	g := s.Lookup(context.Background(), "1.2.3.4")
	require.NotNil(t, g.Country)
	assert.Equal(t, "Japan", *g.Country)

	assert.Nil(t, s.Lookup(context.Background(), "9.9.9.9").Country)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
