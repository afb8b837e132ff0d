package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "tellus/pkg/domain-errors"
)

func TestGetJSONDecodesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "tellus/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte(`{"answer": 42}`))
	}))
	defer srv.Close()

	client := New("worldbank", time.Second)

	var payload struct {
		Answer int `json:"answer"`
	}
	require.NoError(t, client.GetJSON(context.Background(), srv.URL, &payload))
	assert.Equal(t, 42, payload.Answer)
}

func TestGetJSONClassifiesStatuses(t *testing.T) {
	cases := []struct {
		name   string
		status int
		code   dErrors.Code
	}{
		{"too many requests", http.StatusTooManyRequests, dErrors.CodeRateLimited},
		{"server error", http.StatusInternalServerError, dErrors.CodeTransient},
		{"bad gateway", http.StatusBadGateway, dErrors.CodeTransient},
		{"bad request", http.StatusBadRequest, dErrors.CodePermanent},
		{"not found", http.StatusNotFound, dErrors.CodePermanent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			client := New("who", time.Second)
			err := client.GetJSON(context.Background(), srv.URL, &struct{}{})
			require.Error(t, err)
			assert.Equal(t, tc.code, dErrors.CodeOf(err))
		})
	}
}

func TestGetJSONMalformedBodyIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"truncated`))
	}))
	defer srv.Close()

	client := New("fao", time.Second)
	err := client.GetJSON(context.Background(), srv.URL, &struct{}{})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodePermanent, dErrors.CodeOf(err))
}

func TestGetJSONExpiredContextIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := New("openmeteo", time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := client.GetJSON(ctx, srv.URL, &struct{}{})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeTimeout, dErrors.CodeOf(err))
}

func TestGetJSONConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	client := New("nasapower", time.Second)
	err := client.GetJSON(context.Background(), srv.URL, &struct{}{})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeTransient, dErrors.CodeOf(err))
}

type denyingLimiter struct {
	calls int
}

func (d *denyingLimiter) Acquire(ctx context.Context, providerID string) error {
	d.calls++
	return dErrors.Newf(dErrors.CodeRateLimited, "budget exhausted for %s", providerID)
}

func TestGetJSONAcquiresBeforeRequest(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	limiter := &denyingLimiter{}
	client := New("worldbank", time.Second, WithLimiter(limiter))

	err := client.GetJSON(context.Background(), srv.URL, &struct{}{})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeRateLimited, dErrors.CodeOf(err))
	assert.Equal(t, 1, limiter.calls)
	assert.Zero(t, hits, "denied acquisition must not reach the network")
}
