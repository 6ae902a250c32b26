package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "valid", header: "Bearer test-key", want: "test-key"},
		{name: "missing", header: "", wantErr: true},
		{name: "basic", header: "Basic abc", wantErr: true},
		{name: "blank", header: "Bearer   ", wantErr: true},
		{name: "padded", header: "Bearer  key  ", want: "key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://example.test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractBearerToken(req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	tokens := []TokenConfig{
		{Token: "rw-token", Scopes: []string{ScopeInstallationsRW}},
		{Token: "ro-token", Scopes: []string{" installations:ro ", ""}},
	}

	p, ok := Authenticate("admin-key", "admin-key", tokens)
	require.True(t, ok)
	assert.True(t, HasAnyScope(p, ScopeInstallationsRW))

	p, ok = Authenticate("rw-token", "admin-key", tokens)
	require.True(t, ok)
	assert.True(t, HasAnyScope(p, ScopeInstallationsRW))
	assert.True(t, HasAnyScope(p, ScopeInstallationsRO), "rw implies ro")

	p, ok = Authenticate("ro-token", "admin-key", tokens)
	require.True(t, ok)
	assert.False(t, HasAnyScope(p, ScopeInstallationsRW))
	assert.True(t, HasAnyScope(p, ScopeInstallationsRO))

	_, ok = Authenticate("nope", "admin-key", tokens)
	assert.False(t, ok)

	_, ok = Authenticate("", "", nil)
	assert.False(t, ok, "empty key never authenticates")
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	tokens := []TokenConfig{
		{Token: "rw-token", Scopes: []string{ScopeInstallationsRW}},
		{Token: "ro-token", Scopes: []string{ScopeInstallationsRO}},
	}
	var reached bool
	h := Middleware("admin-key", tokens, ScopeInstallationsRW)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := PrincipalFromContext(r.Context())
		reached = ok
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "no header", want: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "read only", header: "Bearer ro-token", want: http.StatusForbidden},
		{name: "read write", header: "Bearer rw-token", want: http.StatusNoContent},
		{name: "admin key", header: "Bearer admin-key", want: http.StatusNoContent},
	}

	for _, tt := range tests {
		reached = false
		req := httptest.NewRequest(http.MethodPost, "/admin/installations/reset", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, tt.want, rec.Code, tt.name)
		assert.Equal(t, tt.want == http.StatusNoContent, reached, tt.name)
	}
}
