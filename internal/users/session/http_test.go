// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/taibuivan/motorhub/internal/platform/apperr"
	"github.com/taibuivan/motorhub/internal/platform/identity"
	"github.com/taibuivan/motorhub/internal/platform/middleware"
	"github.com/taibuivan/motorhub/internal/platform/sec"
	"github.com/taibuivan/motorhub/internal/users/profile"
)

type stateEnvelope struct {
	Data stateView `json:"data"`
}

type errorEnvelope struct {
	Error   string              `json:"error"`
	Code    string              `json:"code"`
	Details []apperr.FieldError `json:"details"`
}

func serve(h *harness, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	request := httptest.NewRequest(method, target, body)
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	recorder := httptest.NewRecorder()
	NewHandler(h.manager, nil).Routes().ServeHTTP(recorder, request)
	return recorder
}

func jsonBody(t *testing.T, payload any) *bytes.Buffer {
	t.Helper()
	body := &bytes.Buffer{}
	require.NoError(t, json.NewEncoder(body).Encode(payload))
	return body
}

func TestHandler_Login(t *testing.T) {
	h := bootstrapped(t)
	h.identity.addAccount(rider("u-1", "ada@motorhub.test"), "secret1")
	h.profiles.put(&profile.Profile{ID: "u-1", Email: "ada@motorhub.test", Role: sec.RoleAdmin})

	recorder := serve(h, http.MethodPost, "/login", jsonBody(t, map[string]string{"email": "ada@motorhub.test", "password": "nope"}), "application/json")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	var failure errorEnvelope
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&failure))
	assert.Equal(t, apperr.CodeInvalidCredentials, failure.Code)
	assert.Equal(t, msgInvalidCredentials, failure.Error)

	recorder = serve(h, http.MethodPost, "/login", jsonBody(t, map[string]string{"email": "ada@motorhub.test", "password": "secret1"}), "application/json")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.NotContains(t, recorder.Body.String(), "token-u-1")

	var success stateEnvelope
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&success))
	require.NotNil(t, success.Data.User)
	assert.Equal(t, "u-1", success.Data.User.ID)
	assert.True(t, success.Data.IsAdmin)
	assert.Equal(t, PhaseAuthenticated, success.Data.Phase)

	recorder = serve(h, http.MethodGet, "/admin", nil, "")
	assert.Equal(t, http.StatusOK, recorder.Code)
}

/*
TestHandler_Guard covers the decision endpoint.
*/
func TestHandler_Guard(t *testing.T) {
	t.Run("Unauthenticated Redirects", func(t *testing.T) {
		h := bootstrapped(t)

		recorder := serve(h, http.MethodGet, "/guard?require=admin", nil, "")
		require.Equal(t, http.StatusOK, recorder.Code)

		var envelope struct {
			Data guardView `json:"data"`
		}
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&envelope))
		assert.Equal(t, DecisionUnauthenticated, envelope.Data.Decision)
		assert.Equal(t, "/login", envelope.Data.Redirect)
	})

	t.Run("Pending Before Bootstrap", func(t *testing.T) {
		h := newHarness(t)

		recorder := serve(h, http.MethodGet, "/guard", nil, "")
		assert.Contains(t, recorder.Body.String(), `"decision":"pending"`)
	})

	t.Run("Unknown Requirement", func(t *testing.T) {
		h := bootstrapped(t)

		recorder := serve(h, http.MethodGet, "/guard?require=owner", nil, "")
		assert.Equal(t, http.StatusBadRequest, recorder.Code)

		var failure errorEnvelope
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&failure))
		require.Len(t, failure.Details, 1)
		assert.Equal(t, "Must be one of: auth, admin", failure.Details[0].Message)
	})
}

func TestHandler_SignupMultipart(t *testing.T) {
	h := bootstrapped(t)
	h.identity.autoConfirm = true

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	require.NoError(t, form.WriteField("email", "ada@motorhub.test"))
	require.NoError(t, form.WriteField("password", "secret1"))
	require.NoError(t, form.WriteField("name", "Ada"))
	require.NoError(t, form.WriteField("city", "Pune"))
	file, err := form.CreateFormFile("avatar", "me.png")
	require.NoError(t, err)
	_, err = file.Write(pngAvatar)
	require.NoError(t, err)
	require.NoError(t, form.Close())

	recorder := serve(h, http.MethodPost, "/signup", body, form.FormDataContentType())
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var envelope stateEnvelope
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&envelope))
	require.NotNil(t, envelope.Data.Profile)
	assert.Equal(t, "Ada", envelope.Data.Profile.Name)
	assert.Equal(t, sec.RoleUser, envelope.Data.Role)
	assert.True(t, strings.HasSuffix(envelope.Data.Profile.AvatarURL, ".png"))
}

func TestHandler_AccountRoutesRequireSession(t *testing.T) {
	h := bootstrapped(t)

	recorder := serve(h, http.MethodPatch, "/profile", jsonBody(t, map[string]string{"city": "Berlin"}), "application/json")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = serve(h, http.MethodGet, "/admin", nil, "")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestHandler_UpdateProfileForm(t *testing.T) {
	h := bootstrapped(t)
	signIn(t, h, rider("u-1", "ada@motorhub.test"), sec.RoleUser)

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	require.NoError(t, form.WriteField("city", "Berlin"))
	require.NoError(t, form.WriteField("role", "admin"))
	require.NoError(t, form.Close())

	recorder := serve(h, http.MethodPatch, "/profile", body, form.FormDataContentType())
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	body.Reset()
	form = multipart.NewWriter(body)
	require.NoError(t, form.WriteField("city", "Berlin"))
	require.NoError(t, form.Close())

	recorder = serve(h, http.MethodPatch, "/profile", body, form.FormDataContentType())
	require.Equal(t, http.StatusOK, recorder.Code)

	var envelope stateEnvelope
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&envelope))
	assert.Equal(t, "Berlin", envelope.Data.Profile.City)
	assert.Equal(t, "Rider u-1", envelope.Data.Profile.Name)
}

func TestHandler_Logout(t *testing.T) {
	h := bootstrapped(t)
	signIn(t, h, rider("u-1", "ada@motorhub.test"), sec.RoleUser)

	recorder := serve(h, http.MethodPost, "/logout", nil, "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"data":{"redirect":"/login"}}`, recorder.Body.String())

	recorder = serve(h, http.MethodGet, "/", nil, "")
	assert.Contains(t, recorder.Body.String(), `"user":null`)
}

func TestHandler_CredentialRateLimit(t *testing.T) {
	h := bootstrapped(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	routes := NewHandler(h.manager, middleware.RateLimitWith(ctx, rate.Limit(0), 1)).Routes()

	attempt := func() int {
		body := jsonBody(t, map[string]string{"email": "ada@motorhub.test", "password": "nope"})
		request := httptest.NewRequest(http.MethodPost, "/login", body)
		request.Header.Set("Content-Type", "application/json")
		recorder := httptest.NewRecorder()
		routes.ServeHTTP(recorder, request)
		return recorder.Code
	}

	assert.Equal(t, http.StatusUnauthorized, attempt())
	assert.Equal(t, http.StatusTooManyRequests, attempt())

	recorder := httptest.NewRecorder()
	routes.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestHandler_StreamState(t *testing.T) {
	h := bootstrapped(t)
	server := httptest.NewServer(NewHandler(h.manager, nil).Routes())
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/events", nil)
	require.NoError(t, err)

	response, err := server.Client().Do(request)
	require.NoError(t, err)
	defer response.Body.Close()
	assert.Equal(t, "text/event-stream", response.Header.Get("Content-Type"))

	events := make(chan string, 8)
	go func() {
		scanner := bufio.NewScanner(response.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
				events <- line
			}
		}
		close(events)
	}()

	assert.Contains(t, <-events, `"phase":"unauthenticated"`)

	h.identity.emit(identity.EventSignedIn, signedIn(rider("u-1", "ada@motorhub.test")))
	assert.Eventually(t, func() bool {
		select {
		case line := <-events:
			return strings.Contains(line, `"id":"u-1"`)
		default:
			return false
		}
	}, waitFor, tick)
}
