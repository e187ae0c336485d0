package awsip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wpchill/sessypress/internal/pkg/ttlcache"
)

const rangesFixture = `{
  "syncToken": "1693526400",
  "createDate": "2023-09-01-00-00-00",
  "prefixes": [
    {"ip_prefix": "54.240.0.0/18", "region": "us-east-1", "service": "AMAZON"},
    {"ip_prefix": "205.251.192.0/19", "region": "GLOBAL", "service": "ROUTE53"},
    {"ip_prefix": "76.223.168.0/21", "region": "us-west-2", "service": "EC2"}
  ],
  "ipv6_prefixes": [
    {"ipv6_prefix": "2600:1f18::/33", "region": "us-east-1", "service": "AMAZON"}
  ]
}`

func testCache(t *testing.T) ttlcache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return ttlcache.NewRedisCache(client, "awsip")
}

func newTestValidator(t *testing.T, handler http.HandlerFunc) *Validator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	v := NewValidator(testCache(t), srv.Client())
	v.SetRangesURL(srv.URL)
	return v
}

func serveFixture(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(rangesFixture))
}

func TestIsAWSIPInRange(t *testing.T) {
	v := newTestValidator(t, serveFixture)
	ctx := context.Background()

	assert.True(t, v.IsAWSIP(ctx, "54.240.0.1", ServiceAmazon))
	assert.True(t, v.IsAWSIP(ctx, "54.240.63.254", ServiceAmazon))
}

func TestIsAWSIPOneBitOutside(t *testing.T) {
	v := newTestValidator(t, serveFixture)

	// 54.240.64.0 is the first address past the /18.
	assert.False(t, v.IsAWSIP(context.Background(), "54.240.64.0", ServiceAmazon))
}

func TestIsAWSIPv6(t *testing.T) {
	v := newTestValidator(t, serveFixture)
	ctx := context.Background()

	assert.True(t, v.IsAWSIP(ctx, "2600:1f18::1", ServiceAmazon))
	// Flips the first bit past the /33 boundary.
	assert.False(t, v.IsAWSIP(ctx, "2600:1f18:8000::1", ServiceAmazon))
}

func TestIsAWSIPServiceFilter(t *testing.T) {
	v := newTestValidator(t, serveFixture)
	ctx := context.Background()

	assert.True(t, v.IsAWSIP(ctx, "205.251.192.1", "ROUTE53"))
	assert.False(t, v.IsAWSIP(ctx, "205.251.192.1", "EC2"))
	// AMAZON is the wildcard filter, matching any declared service.
	assert.True(t, v.IsAWSIP(ctx, "205.251.192.1", ServiceAmazon))
}

func TestIsAWSIPFailsOpenOnFetchError(t *testing.T) {
	v := newTestValidator(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	assert.True(t, v.IsAWSIP(context.Background(), "8.8.8.8", ServiceAmazon))
}

func TestIsAWSIPFailsOpenOnMalformedDoc(t *testing.T) {
	v := newTestValidator(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"prefixes": "not-a-list"`))
	})

	assert.True(t, v.IsAWSIP(context.Background(), "8.8.8.8", ServiceAmazon))
}

func TestIsAWSIPInvalidAddress(t *testing.T) {
	v := newTestValidator(t, serveFixture)

	assert.False(t, v.IsAWSIP(context.Background(), "not-an-ip", ServiceAmazon))
}

func TestRangesCachedAcrossCalls(t *testing.T) {
	fetches := 0
	v := newTestValidator(t, func(w http.ResponseWriter, r *http.Request) {
		fetches++
		serveFixture(w, r)
	})
	ctx := context.Background()

	require.True(t, v.IsAWSIP(ctx, "54.240.0.1", ServiceAmazon))
	require.False(t, v.IsAWSIP(ctx, "8.8.8.8", ServiceAmazon))
	require.True(t, v.IsAWSIP(ctx, "54.240.0.1", ServiceAmazon))

	assert.Equal(t, 1, fetches)
}

func TestRangesCacheExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	cache := ttlcache.NewRedisCache(client, "awsip")

	fetches := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		serveFixture(w, r)
	}))
	t.Cleanup(srv.Close)

	v := NewValidator(cache, srv.Client())
	v.SetRangesURL(srv.URL)
	ctx := context.Background()

	require.True(t, v.IsAWSIP(ctx, "54.240.0.1", ServiceAmazon))
	mr.FastForward(25 * time.Hour)
	require.True(t, v.IsAWSIP(ctx, "54.240.0.1", ServiceAmazon))

	assert.Equal(t, 2, fetches)
}
