package querysource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/opsdesk/internal/core"
	apperrors "github.com/target/opsdesk/internal/errors"
)

func TestHTTPSource_Query(t *testing.T) {
	var got queryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"records":[{"last_activity":"2024-01-01 10:00:00"}]},"count":1}`))
	}))
	defer srv.Close()

	src, err := NewHTTPSource(HTTPSourceConfig{Endpoint: srv.URL, RowsExpression: "result.records"})
	require.NoError(t, err)

	rows, err := src.Query(context.Background(), core.Query{Text: "SELECT 1", Args: []any{"a@x.com"}})
	require.NoError(t, err)
	assert.Equal(t, []core.Row{{"last_activity": "2024-01-01 10:00:00"}}, rows)
	assert.Equal(t, "SELECT 1", got.Query)
	assert.Equal(t, []any{"a@x.com"}, got.Args)
}

func TestHTTPSource_ClientCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "opsdesk", user)
		assert.Equal(t, "s3cret", pass)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"rows":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src, err := NewHTTPSource(HTTPSourceConfig{
		Endpoint:     srv.URL + "/query",
		TokenURL:     srv.URL + "/token",
		ClientID:     "opsdesk",
		ClientSecret: "s3cret",
	})
	require.NoError(t, err)

	rows, err := src.Query(context.Background(), core.Query{Text: "SELECT 1"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestHTTPSource_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		is      error
	}{
		{name: "server error", status: http.StatusBadGateway, body: "upstream down", wantErr: "502"},
		{name: "client error", status: http.StatusBadRequest, body: "bad query", wantErr: "400"},
		{name: "invalid json", status: http.StatusOK, body: "{", wantErr: "decode response"},
		{name: "rows not a list", status: http.StatusOK, body: `{"rows":{"a":1}}`, is: ErrUnexpectedShape},
		{name: "row not an object", status: http.StatusOK, body: `{"rows":[1,2]}`, is: ErrUnexpectedShape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			src, err := NewHTTPSource(HTTPSourceConfig{Endpoint: srv.URL})
			require.NoError(t, err)
			_, err = src.Query(context.Background(), core.Query{Text: "SELECT 1"})
			require.Error(t, err)
			if tt.is != nil {
				assert.True(t, errors.Is(err, tt.is))
			} else {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestHTTPSource_MissingRowsIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"count":0}`))
	}))
	defer srv.Close()

	src, err := NewHTTPSource(HTTPSourceConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	rows, err := src.Query(context.Background(), core.Query{Text: "SELECT 1"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestNewHTTPSourceValidation(t *testing.T) {
	_, err := NewHTTPSource(HTTPSourceConfig{})
	require.Error(t, err)

	_, err = NewHTTPSource(HTTPSourceConfig{Endpoint: "http://example.test", RowsExpression: "rows[?"})
	require.Error(t, err)
}

func TestHTTPSource_UnavailableClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		unavailable bool
	}{
		{name: "bad gateway", status: http.StatusBadGateway, unavailable: true},
		{name: "rate limited", status: http.StatusTooManyRequests, unavailable: true},
		{name: "bad request", status: http.StatusBadRequest, unavailable: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			src, err := NewHTTPSource(HTTPSourceConfig{Endpoint: srv.URL})
			require.NoError(t, err)
			_, err = src.Query(context.Background(), core.Query{Text: "SELECT 1"})
			require.Error(t, err)
			assert.Equal(t, tt.unavailable, apperrors.IsUnavailable(err))
		})
	}
}

func TestHTTPSource_TransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	src, err := NewHTTPSource(HTTPSourceConfig{Endpoint: endpoint})
	require.NoError(t, err)
	_, err = src.Query(context.Background(), core.Query{Text: "SELECT 1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
}
