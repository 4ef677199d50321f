// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taibuivan/motorhub/internal/platform/constants"
	"github.com/taibuivan/motorhub/internal/platform/identity"
	requestutil "github.com/taibuivan/motorhub/internal/platform/request"
	"github.com/taibuivan/motorhub/internal/platform/respond"
	"github.com/taibuivan/motorhub/internal/platform/sec"
	"github.com/taibuivan/motorhub/internal/platform/validate"
	"github.com/taibuivan/motorhub/internal/users/profile"
)

// Handler implements the console HTTP layer over a [Manager].
type Handler struct {
	manager         *Manager
	credentialLimit func(http.Handler) http.Handler
}

// NewHandler constructs a new session [Handler]. credentialLimit, when not
// nil, wraps the endpoints that accept credentials.
func NewHandler(manager *Manager, credentialLimit func(http.Handler) http.Handler) *Handler {
	return &Handler{manager: manager, credentialLimit: credentialLimit}
}

// Routes returns a [chi.Router] configured with the session endpoints.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Long-lived stream, no request deadline
	router.Get("/events", handler.streamState)

	router.Group(func(router chi.Router) {
		router.Use(chimw.Timeout(constants.GlobalRequestTimeout))

		// State
		router.Get("/", handler.getState)
		router.Get("/guard", handler.checkGuard)

		// Credential flows
		router.Group(func(router chi.Router) {
			if handler.credentialLimit != nil {
				router.Use(handler.credentialLimit)
			}
			router.Post("/login", handler.login)
			router.Post("/signup", handler.signup)
			router.Post("/reset-password", handler.resetPassword)
			router.Post("/recover", handler.recover)
		})
		router.Post("/logout", handler.logout)

		// Account edits
		router.Group(func(router chi.Router) {
			router.Use(RequireSession(handler.manager))
			router.Patch("/user", handler.updateUser)
			router.Patch("/profile", handler.updateProfile)
		})

		// Back-office
		router.With(RequireAdministrator(handler.manager)).Get("/admin", handler.getAdmin)
	})

	return router
}

// # Views

type userView struct {
	ID             string         `json:"id"`
	Email          string         `json:"email"`
	EmailConfirmed bool           `json:"email_confirmed"`
	Metadata       map[string]any `json:"metadata"`
}

// stateView is the wire shape of a [State]. Tokens are never exposed.
type stateView struct {
	User    *userView        `json:"user"`
	Role    sec.UserRole     `json:"role"`
	IsAdmin bool             `json:"is_admin"`
	Profile *profile.Profile `json:"profile"`
	Loading bool             `json:"loading"`
	Error   string           `json:"error,omitempty"`
	Phase   Phase            `json:"phase"`
}

func viewOf(state State) stateView {
	view := stateView{
		Role:    state.Role,
		IsAdmin: state.IsAdmin(),
		Profile: state.Profile,
		Loading: state.Loading,
		Error:   state.Error,
		Phase:   state.Phase,
	}
	if state.User != nil {
		view.User = &userView{
			ID:             state.User.ID,
			Email:          state.User.Email,
			EmailConfirmed: state.User.EmailConfirmed(),
			Metadata:       state.User.UserMetadata,
		}
	}
	return view
}

// # State Endpoints

/*
GET /api/v1/session.

Description: Returns the current resolved session.

Response:
  - 200: stateView
*/
func (handler *Handler) getState(writer http.ResponseWriter, _ *http.Request) {
	respond.OK(writer, viewOf(handler.manager.State()))
}

/*
GET /api/v1/session/events.

Description: Streams every state change as a server-sent event until the
client disconnects or the manager closes.

Response:
  - 200: text/event-stream of stateView
*/
func (handler *Handler) streamState(writer http.ResponseWriter, request *http.Request) {
	controller := http.NewResponseController(writer)

	states, cancel := handler.manager.Watch()
	defer cancel()

	writer.Header().Set("Content-Type", "text/event-stream")
	writer.Header().Set("Cache-Control", "no-cache")
	writer.WriteHeader(http.StatusOK)
	if err := controller.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-request.Context().Done():
			return
		case state, open := <-states:
			if !open {
				return
			}
			payload, err := json.Marshal(viewOf(state))
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(writer, "event: state\ndata: %s\n\n", payload); err != nil {
				return
			}
			if err := controller.Flush(); err != nil {
				return
			}
		}
	}
}

type guardView struct {
	Decision Decision `json:"decision"`
	Redirect string   `json:"redirect,omitempty"`
}

/*
GET /api/v1/session/guard?require=auth|admin.

Description: Evaluates a route requirement without enforcing it, for
clients deciding whether to render a protected page.

Response:
  - 200: guardView
  - 400: Validation: Unknown requirement
*/
func (handler *Handler) checkGuard(writer http.ResponseWriter, request *http.Request) {
	requirement := request.URL.Query().Get("require")
	if requirement == "" {
		requirement = string(RequireAuth)
	}

	v := &validate.Validator{}
	v.OneOf("require", requirement, string(RequireAuth), string(RequireAdmin))
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	view := guardView{Decision: Decide(handler.manager.State(), Requirement(requirement))}
	if view.Decision == DecisionUnauthenticated {
		view.Redirect = constants.LandingPath
	}
	respond.OK(writer, view)
}

// # Credential Endpoints

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

/*
POST /api/v1/session/login.

Request:
  - body: loginRequest

Response:
  - 200: stateView with the resolved role
  - 400: Validation
  - 401: Invalid credentials or unconfirmed email
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.manager.Login(request.Context(), input.Email, input.Password); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, viewOf(handler.manager.State()))
}

type signupRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Name     string         `json:"name"`
	MobileNo string         `json:"mobile_no"`
	City     string         `json:"city"`
	Country  string         `json:"country"`
	Metadata map[string]any `json:"metadata"`
}

/*
POST /api/v1/session/signup.

Description: Accepts JSON, or a multipart form carrying an optional
"avatar" image file.

Response:
  - 201: stateView (user absent while email confirmation is pending)
  - 400: Validation
  - 409: Email already registered
*/
func (handler *Handler) signup(writer http.ResponseWriter, request *http.Request) {
	var input SignupInput

	if isJSON(request) {
		var body signupRequest
		if err := requestutil.DecodeJSON(request, &body); err != nil {
			respond.Error(writer, request, err)
			return
		}
		input = SignupInput{
			Email:    body.Email,
			Password: body.Password,
			Name:     body.Name,
			MobileNo: body.MobileNo,
			City:     body.City,
			Country:  body.Country,
			Metadata: body.Metadata,
		}
	} else {
		if err := requestutil.ParseForm(request); err != nil {
			respond.Error(writer, request, err)
			return
		}
		form := request.PostForm
		input = SignupInput{
			Email:    form.Get("email"),
			Password: form.Get("password"),
			Name:     form.Get("name"),
			MobileNo: form.Get("mobile_no"),
			City:     form.Get("city"),
			Country:  form.Get("country"),
		}

		avatar, err := formAvatar(request)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}
		input.Avatar = avatar
	}

	if err := handler.manager.Signup(request.Context(), input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, viewOf(handler.manager.State()))
}

type logoutView struct {
	Redirect string `json:"redirect"`
}

/*
POST /api/v1/session/logout.

Description: Local session state is cleared even when the provider call
fails; the failure is still reported.

Response:
  - 200: logoutView
  - 503: Sign-out failed upstream (state already cleared)
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	landing, err := handler.manager.Logout(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, logoutView{Redirect: landing})
}

type resetRequest struct {
	Email string `json:"email"`
}

/*
POST /api/v1/session/reset-password.

Response:
  - 202: Recovery email requested
  - 400: Validation
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.manager.ResetPassword(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Accepted(writer, Notice{Level: LevelSuccess, Message: noticeResetSent})
}

type recoverRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

/*
POST /api/v1/session/recover.

Description: Exchanges the tokens of a recovery link for a session, after
which the user may set a new password through PATCH /user.

Response:
  - 200: stateView
  - 401: Link rejected
*/
func (handler *Handler) recover(writer http.ResponseWriter, request *http.Request) {
	var input recoverRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.manager.CompleteRecovery(request.Context(), input.AccessToken, input.RefreshToken); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, viewOf(handler.manager.State()))
}

// # Account Endpoints

type updateUserRequest struct {
	Password string         `json:"password"`
	Metadata map[string]any `json:"data"`
}

/*
PATCH /api/v1/session/user.

Response:
  - 200: stateView
  - 401: No session
  - 403: Role change by a non-admin
*/
func (handler *Handler) updateUser(writer http.ResponseWriter, request *http.Request) {
	var input updateUserRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	update := identity.UserUpdate{Password: input.Password, Metadata: input.Metadata}
	if err := handler.manager.UpdateUser(request.Context(), update); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, viewOf(handler.manager.State()))
}

/*
PATCH /api/v1/session/profile.

Description: Accepts a partial JSON update, or a multipart form whose present
fields are applied plus an optional "avatar" image file.

Response:
  - 200: stateView with the stored profile
  - 400: Validation
  - 403: Role change by a non-admin
*/
func (handler *Handler) updateProfile(writer http.ResponseWriter, request *http.Request) {
	var update profile.Update
	var avatar *Avatar

	if isJSON(request) {
		if err := requestutil.DecodeJSON(request, &update); err != nil {
			respond.Error(writer, request, err)
			return
		}
	} else {
		if err := requestutil.ParseForm(request); err != nil {
			respond.Error(writer, request, err)
			return
		}
		form := request.PostForm
		update = profile.Update{
			Name:     optionalField(form, "name"),
			MobileNo: optionalField(form, "mobile_no"),
			City:     optionalField(form, "city"),
			Country:  optionalField(form, "country"),
		}
		if role := optionalField(form, "role"); role != nil {
			value := sec.UserRole(*role)
			update.Role = &value
		}

		var err error
		if avatar, err = formAvatar(request); err != nil {
			respond.Error(writer, request, err)
			return
		}
	}

	if err := handler.manager.UpdateProfile(request.Context(), update, avatar); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, viewOf(handler.manager.State()))
}

/*
GET /api/v1/session/admin.

Description: Back-office entry point; reachable by admins only.

Response:
  - 200: stateView
  - 401/403/503: Guard rejection
*/
func (handler *Handler) getAdmin(writer http.ResponseWriter, _ *http.Request) {
	respond.OK(writer, viewOf(handler.manager.State()))
}

// # Helpers

func isJSON(request *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(request.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func formAvatar(request *http.Request) (*Avatar, error) {
	content, fileName, err := requestutil.OptionalFile(request, "avatar", constants.MaxAvatarBytes)
	if err != nil || content == nil {
		return nil, err
	}
	return &Avatar{FileName: fileName, Content: content}, nil
}

// optionalField returns nil when key is absent from the form.
func optionalField(form url.Values, key string) *string {
	values, ok := form[key]
	if !ok || len(values) == 0 {
		return nil
	}
	value := values[0]
	return &value
}
