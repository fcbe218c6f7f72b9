package upload

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutEscapesFilename(t *testing.T) {
	var gotFilename, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFilename = r.URL.Query().Get("filename")
		gotContentType = r.Header.Get("Content-Type")
		json.NewEncoder(w).Encode(map[string]string{"url": "https://media.example/x"})
	}))
	defer srv.Close()

	m := NewMediaStore(srv.URL, zerolog.Nop())
	meta := testMeta()
	meta.Filename = "knee scan #2 & notes.png"

	ref, err := m.Put(context.Background(), meta, strings.NewReader("bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://media.example/x", string(ref))

	// The awkward filename survives the query string intact.
	assert.Equal(t, "knee scan #2 & notes.png", gotFilename)
	assert.Equal(t, "image/png", gotContentType)
}

func TestPutRejectedByMediaStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInsufficientStorage)
	}))
	defer srv.Close()

	m := NewMediaStore(srv.URL, zerolog.Nop())
	_, err := m.Put(context.Background(), testMeta(), strings.NewReader("bytes"))
	require.Error(t, err)
}

func TestPutRequiresAckURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	m := NewMediaStore(srv.URL, zerolog.Nop())
	_, err := m.Put(context.Background(), testMeta(), strings.NewReader("bytes"))
	require.Error(t, err)
}
