// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package objectstore is the client for the hosted object storage API that
holds profile pictures.

Objects are addressed as bucket + path. Uploads overwrite an existing object
at the same path, so a user's canonical avatar path can be reused.
*/
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrRejected marks uploads or removals the storage API refused.
var ErrRejected = errors.New("objectstore: request rejected")

// cacheControl is the max-age, in seconds, attached to uploaded objects.
const cacheControl = "3600"

// Options configures a [Client].
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client uploads, removes and addresses stored objects.
type Client struct {
	http    *resty.Client
	baseURL string
}

// NewClient creates a new object storage [Client].
func NewClient(options Options) *Client {
	httpClient := resty.New().
		SetBaseURL(options.BaseURL).
		SetTimeout(options.Timeout).
		SetHeader("apikey", options.APIKey).
		SetAuthToken(options.APIKey)

	return &Client{
		http:    httpClient,
		baseURL: strings.TrimSuffix(options.BaseURL, "/"),
	}
}

type storageError struct {
	StatusCode string `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

/*
Upload stores content at bucket/path, replacing any existing object.

Returns:
  - string: The stored object path, usable with [Client.PublicURL]
  - error: [ErrRejected] or transport failures
*/
func (client *Client) Upload(ctx context.Context, bucket, path string, content []byte, contentType string) (string, error) {
	response, err := client.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetHeader("x-upsert", "true").
		SetHeader("cache-control", cacheControl).
		SetBody(content).
		SetError(&storageError{}).
		Post(objectPath(bucket, path))
	if err := check(response, err, "upload"); err != nil {
		return "", err
	}
	return path, nil
}

// PublicURL returns the unauthenticated download URL of a stored object.
func (client *Client) PublicURL(bucket, path string) string {
	return client.baseURL + "/storage/v1/object/public/" + url.PathEscape(bucket) + "/" + escapePath(path)
}

// Remove deletes the objects at paths. Missing objects are ignored.
func (client *Client) Remove(ctx context.Context, bucket string, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	response, err := client.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string][]string{"prefixes": paths}).
		SetError(&storageError{}).
		Delete("/storage/v1/object/" + url.PathEscape(bucket))
	return check(response, err, "remove")
}

func objectPath(bucket, path string) string {
	return "/storage/v1/object/" + url.PathEscape(bucket) + "/" + escapePath(path)
}

// escapePath escapes each segment and keeps the separators.
func escapePath(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

func check(response *resty.Response, err error, action string) error {
	if err != nil {
		return fmt.Errorf("objectstore_%s_failed: %w", action, err)
	}
	if !response.IsError() {
		return nil
	}

	message := http.StatusText(response.StatusCode())
	if payload, ok := response.Error().(*storageError); ok && payload.Message != "" {
		message = payload.Message
	}
	return fmt.Errorf("objectstore_%s_failed (status %d): %s: %w", action, response.StatusCode(), message, ErrRejected)
}
