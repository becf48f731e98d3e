package filing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>filing body</body></html>")
	}))
	t.Cleanup(srv.Close)

	d := NewDownloader(5*time.Second, 1<<20, "test-agent")
	raw, err := d.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, raw, "filing body")
}

func TestFetchNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	d := NewDownloader(5*time.Second, 1<<20, "test-agent")
	_, err := d.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrDownload)
}

func TestFetchOversizedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 2048))
	}))
	t.Cleanup(srv.Close)

	d := NewDownloader(5*time.Second, 1024, "test-agent")
	_, err := d.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrDownload)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestFetchPayloadExactlyAtLimit(t *testing.T) {
	body := strings.Repeat("y", 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	d := NewDownloader(5*time.Second, 1024, "test-agent")
	raw, err := d.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, body, raw)
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	d := NewDownloader(20*time.Millisecond, 1<<20, "test-agent")
	_, err := d.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrDownload)
}

func TestFetchSendsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	t.Cleanup(srv.Close)

	d := NewDownloader(5*time.Second, 1<<20, "edgar-agent")
	_, err := d.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "edgar-agent", got)
}
