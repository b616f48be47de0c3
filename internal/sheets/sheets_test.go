package sheets

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsip/otf-results/internal/rank"
)

func fakeSheetsAPI(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/sheet-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sheets.properties.title", r.URL.Query().Get("fields"))
		w.Write([]byte(`{"sheets":[{"properties":{"title":"Test 1"}},{"properties":{"title":"T2"}}]}`))
	})
	mux.HandleFunc("/sheet-1/values/", func(w http.ResponseWriter, r *http.Request) {
		rng := strings.TrimPrefix(r.URL.Path, "/sheet-1/values/")
		switch rng {
		case "'Test 1'!A:Z":
			w.Write([]byte(`{"range":"'Test 1'!A1:Z4","majorDimension":"ROWS","values":[["ID","Total Score"],["A1","9/15"],["A2"]]}`))
		case "T2!A:Z":
			w.Write([]byte(`{"range":"T2!A1:Z1000","majorDimension":"ROWS"}`))
		case "Locked!A:Z":
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":{"code":403,"message":"The caller does not have permission","status":"PERMISSION_DENIED"}}`))
		case "Gone!A:Z":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":400,"message":"Unable to parse range: Gone!A:Z","status":"INVALID_ARGUMENT"}}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"code":500,"message":"backend error"}}`))
		}
	})

	return httptest.NewServer(mux)
}

func TestClientSheetNames(t *testing.T) {
	srv := fakeSheetsAPI(t)
	defer srv.Close()

	c := newClient(srv.Client(), srv.URL+"/", "sheet-1")
	names, err := c.SheetNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Test 1", "T2"}, names)
}

func TestClientValues(t *testing.T) {
	srv := fakeSheetsAPI(t)
	defer srv.Close()

	c := newClient(srv.Client(), srv.URL, "sheet-1")

	tbl, err := c.Values(context.Background(), "Test 1")
	require.NoError(t, err)
	assert.Equal(t, rank.Table{{"ID", "Total Score"}, {"A1", "9/15"}, {"A2"}}, tbl)

	tbl, err = c.Values(context.Background(), "T2")
	require.NoError(t, err)
	assert.Empty(t, tbl)
}

func TestClientErrors(t *testing.T) {
	srv := fakeSheetsAPI(t)
	defer srv.Close()

	c := newClient(srv.Client(), srv.URL, "sheet-1")

	_, err := c.Values(context.Background(), "Locked")
	assert.True(t, errors.Is(err, ErrAccessDenied))
	assert.Contains(t, err.Error(), "does not have permission")

	_, err = c.Values(context.Background(), "Gone")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = c.Values(context.Background(), "Broken")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "backend error", apiErr.Message)

	missing := newClient(srv.Client(), srv.URL, "no-such-sheet")
	_, err = missing.SheetNames(context.Background())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSheetRange(t *testing.T) {
	assert.Equal(t, "Week_1!A:Z", SheetRange("Week_1"))
	assert.Equal(t, "'Mock Test 3'!A:Z", SheetRange("Mock Test 3"))
	assert.Equal(t, "'Ann''s'!A:Z", SheetRange("Ann's"))
}

func TestConfigValidate(t *testing.T) {
	err := Config{}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConfigured))
	assert.Contains(t, err.Error(), "spreadsheet id, service account email, private key")

	err = Config{SpreadsheetID: "x", ServiceAccountEmail: "svc@example.com"}.Validate()
	assert.True(t, errors.Is(err, ErrNotConfigured))
	assert.Contains(t, err.Error(), "missing private key")
}

func testKey(t *testing.T) string {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(k)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, Config{})
	assert.True(t, errors.Is(err, ErrNotConfigured))

	cfg := Config{
		SpreadsheetID:       "sheet-1",
		ServiceAccountEmail: "svc@example.iam.gserviceaccount.com",
		PrivateKey:          "not a key",
	}
	_, err = New(ctx, cfg)
	assert.True(t, errors.Is(err, ErrMalformedKey))

	// keys from env vars arrive on a single line
	cfg.PrivateKey = strings.ReplaceAll(testKey(t), "\n", `\n`)
	c, err := New(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, "sheet-1", c.spreadsheetID)
	assert.Equal(t, defaultBaseURL, c.baseURL)
}
