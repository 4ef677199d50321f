// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is the smallest prefix both sniffers recognise as PNG.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Options{BaseURL: server.URL, APIKey: "anon-key", Timeout: 2 * time.Second})
}

/*
TestClient_Upload verifies the upload request shape and the returned path.
*/
func TestClient_Upload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/storage/v1/object/profile-pictures/avatars/a b.png", r.URL.Path)
		assert.Equal(t, "true", r.Header.Get("x-upsert"))
		assert.Equal(t, "3600", r.Header.Get("cache-control"))
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, pngHeader, body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Key":"profile-pictures/avatars/a b.png"}`))
	})

	stored, err := client.Upload(context.Background(), "profile-pictures", "avatars/a b.png", pngHeader, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "avatars/a b.png", stored)
}

// TestClient_Upload_Rejected verifies storage errors surface as ErrRejected.
func TestClient_Upload_Rejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"statusCode":"400","error":"InvalidMimeType","message":"mime type not supported"}`))
	})

	_, err := client.Upload(context.Background(), "profile-pictures", "avatars/x.png", pngHeader, "image/png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Contains(t, err.Error(), "mime type not supported")
}

// TestClient_Remove verifies removal sends the prefixes body.
func TestClient_Remove(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/storage/v1/object/profile-pictures", r.URL.Path)

		var body map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"avatars/x.png"}, body["prefixes"])
		_, _ = w.Write([]byte(`[]`))
	})

	require.NoError(t, client.Remove(context.Background(), "profile-pictures", "avatars/x.png"))
	require.NoError(t, client.Remove(context.Background(), "profile-pictures"))
}

func TestClient_PublicURL(t *testing.T) {
	client := NewClient(Options{BaseURL: "https://backend.test/"})
	assert.Equal(t,
		"https://backend.test/storage/v1/object/public/profile-pictures/u-1/profile.png",
		client.PublicURL("profile-pictures", "u-1/profile.png"))
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    string
		image   bool
	}{
		{"PNG", pngHeader, "image/png", true},
		{"Text", []byte("just some words"), "text/plain", false},
		{"Empty", nil, "application/octet-stream", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectContentType(tt.content)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.image, IsImage(got))
		})
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".png", Extension("image/png", "photo.jpeg"))
	assert.Equal(t, ".webp", Extension("application/x-unknown", "Photo.WEBP"))
	assert.Equal(t, "", Extension("application/x-unknown", "photo"))
}
