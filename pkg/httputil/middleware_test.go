package httputil_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentflow/scentflow-backend/pkg/actor"
	"github.com/scentflow/scentflow-backend/pkg/auth"
	"github.com/scentflow/scentflow-backend/pkg/config"
	"github.com/scentflow/scentflow-backend/pkg/httputil"
)

func captureActor(got **actor.Actor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = actor.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestIdentity(t *testing.T) {
	verifier := auth.NewTokenVerifier(&config.JWTConfig{Secret: "s3cret", Issuer: "scentflow"})
	token, err := verifier.Issue(&actor.Actor{ID: "u-1", LocationID: "wh-1"}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name         string
		trustHeaders bool
		headers      map[string]string
		path         string
		wantStatus   int
		wantActor    *actor.Actor
	}{
		{
			name:       "bearer token",
			headers:    map[string]string{"Authorization": "Bearer " + token},
			wantStatus: http.StatusOK,
			wantActor:  &actor.Actor{ID: "u-1", LocationID: "wh-1"},
		},
		{
			name:       "malformed header",
			headers:    map[string]string{"Authorization": "Token abc"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid token",
			headers:    map[string]string{"Authorization": "Bearer abc"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "gateway headers ignored unless trusted",
			headers:    map[string]string{"X-User-ID": "u-2"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:         "trusted gateway headers",
			trustHeaders: true,
			headers:      map[string]string{"X-User-ID": "u-2", "X-Location-ID": "kiosk-3", "X-Global-Admin": "true"},
			wantStatus:   http.StatusOK,
			wantActor:    &actor.Actor{ID: "u-2", LocationID: "kiosk-3", IsGlobalAdmin: true},
		},
		{
			name:       "health is public",
			path:       "/health",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *actor.Actor
			h := httputil.Identity(verifier, tt.trustHeaders)(captureActor(&got))

			path := tt.path
			if path == "" {
				path = "/api/v1/inventory/transfers"
			}
			req := httptest.NewRequest(http.MethodGet, path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			if tt.wantActor != nil {
				require.NotNil(t, got)
				assert.Equal(t, tt.wantActor.ID, got.ID)
				assert.Equal(t, tt.wantActor.LocationID, got.LocationID)
				assert.Equal(t, tt.wantActor.IsGlobalAdmin, got.IsGlobalAdmin)
			}
		})
	}
}
