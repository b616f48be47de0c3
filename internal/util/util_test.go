package util

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":404}}`))
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	headers := map[string]string{"Accept": "application/json"}

	body, err := Fetch(context.Background(), srv.Client(), http.MethodGet, srv.URL+"/ok", headers, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))

	_, err = Fetch(context.Background(), srv.Client(), http.MethodGet, srv.URL+"/missing", headers, nil)
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Contains(t, string(se.Body), "404")
}

func TestGenerateNameAndID(t *testing.T) {
	assert.GreaterOrEqual(t, len(GenerateName()), 5)
	assert.NotEqual(t, GenerateID(), GenerateID())
}

func TestAvailablePort(t *testing.T) {
	port, err := AvailablePort()
	require.NoError(t, err)
	assert.Greater(t, port, 0)
}
