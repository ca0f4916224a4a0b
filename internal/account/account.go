// Package account signs users in and out against the security service and
// keeps the persisted session in step.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/fpang/medassist/internal/apierr"
	"github.com/fpang/medassist/internal/session"
	"github.com/fpang/medassist/internal/transport"
)

// Security service paths.
const (
	PathLogin    = "api/user/login"
	PathRegister = "api/user/register"
)

// DefaultLanguage is used when neither the request nor the previous session
// names one.
const DefaultLanguage = "en"

// LoginRequest is the body of a login call.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Language string `json:"-" validate:"omitempty,oneof=en ar"`
}

// RegisterRequest is the body of a signup call.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	AppID    string `json:"appId,omitempty"`
	Language string `json:"-" validate:"omitempty,oneof=en ar"`
}

// Paths probed in the security service's response.
var (
	tokenPaths = []string{"token", "data.token", "accessToken", "access_token", "data.accessToken"}
	userPaths  = []string{"user", "data.user", "data"}
	idPaths    = []string{"id", "_id", "userId"}
	namePaths  = []string{"name", "userName", "username"}
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Service performs login, signup and logout.
type Service struct {
	t     *transport.Client
	store session.Store
}

// New creates a Service that talks to the security service through t and
// persists sessions to store.
func New(t *transport.Client, store session.Store) *Service {
	return &Service{t: t, store: store}
}

// Login authenticates and persists the new session. Invalid input fails with
// a validation error before any request is made.
func (s *Service) Login(ctx context.Context, req LoginRequest) transport.Result[*session.Session] {
	req.Email = strings.TrimSpace(req.Email)
	if err := validateRequest(req); err != nil {
		return transport.Fail[*session.Session](err)
	}
	return s.authenticate(ctx, PathLogin, req, req.Language)
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) transport.Result[*session.Session] {
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := validateRequest(req); err != nil {
		return transport.Fail[*session.Session](err)
	}
	return s.authenticate(ctx, PathRegister, req, req.Language)
}

// Logout removes every persisted session key.
func (s *Service) Logout() error {
	if err := s.store.Clear(); err != nil {
		return apierr.New(apierr.CodeStorage, err)
	}
	log.Info().Msg("Signed out")
	return nil
}

// Current loads the persisted session.
func (s *Service) Current() (*session.Session, error) {
	sess, err := s.store.Load()
	if err != nil {
		return nil, apierr.New(apierr.CodeStorage, err)
	}
	return sess, nil
}

func (s *Service) authenticate(ctx context.Context, path string, body any, language string) transport.Result[*session.Session] {
	raw := s.t.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   path,
		JSON:   body,
		Class:  transport.ClassWrite,
	})
	data, ok := raw.Value()
	if !ok {
		return transport.Fail[*session.Session](raw.Err())
	}

	sess, apiErr := parseSession(data)
	if apiErr != nil {
		return transport.Fail[*session.Session](apiErr)
	}
	sess.Language = s.language(language)

	if err := s.store.Save(sess); err != nil {
		return transport.Fail[*session.Session](apierr.New(apierr.CodeStorage, err))
	}
	log.Info().Str("userId", sess.User.ID).Str("path", path).Msg("Signed in")
	return transport.Ok(sess)
}

// language keeps the previous preference across sign-ins unless one is given.
func (s *Service) language(requested string) string {
	if requested != "" {
		return requested
	}
	if prev, err := s.store.Load(); err == nil && prev.Language != "" {
		return prev.Language
	}
	return DefaultLanguage
}

// parseSession extracts the token and profile from a login or signup
// response. The security service has shipped several envelope shapes.
func parseSession(data []byte) (*session.Session, *apierr.Error) {
	doc := gjson.ParseBytes(data)
	token := firstString(doc, tokenPaths)
	if token == "" {
		return nil, apierr.New(apierr.CodeUnknown, errors.New("auth response carried no token"))
	}

	sess := &session.Session{Token: token}
	for _, p := range userPaths {
		u := doc.Get(p)
		if !u.IsObject() {
			continue
		}
		sess.User = session.UserProfile{
			ID:      firstScalar(u, idPaths),
			Name:    firstString(u, namePaths),
			Email:   u.Get("email").String(),
			Role:    firstScalar(u, []string{"role", "roleName", "role.name"}),
			RoleID:  firstScalar(u, []string{"roleId", "role_id", "role.id"}),
			AppID:   firstScalar(u, []string{"appId", "app_id"}),
			AppName: firstScalar(u, []string{"appName", "app_name"}),
		}
		break
	}
	return sess, nil
}

func firstString(doc gjson.Result, paths []string) string {
	for _, p := range paths {
		if v := doc.Get(p); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// firstScalar accepts numeric identifiers as well as strings.
func firstScalar(doc gjson.Result, paths []string) string {
	for _, p := range paths {
		v := doc.Get(p)
		if v.Type == gjson.String || v.Type == gjson.Number {
			if s := v.String(); s != "" {
				return s
			}
		}
	}
	return ""
}

// validateRequest converts validator failures into one user-facing message
// naming the first bad field.
func validateRequest(req any) *apierr.Error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apierr.Validation("Please check your input and try again.")
	}
	fe := fieldErrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return apierr.Validation(field + " is required.")
	case "email":
		return apierr.Validation("Please enter a valid email address.")
	case "min":
		return apierr.Validation(fmt.Sprintf("%s must be at least %s characters.", field, fe.Param()))
	case "max":
		return apierr.Validation(fmt.Sprintf("%s must be at most %s characters.", field, fe.Param()))
	case "oneof":
		return apierr.Validation(fmt.Sprintf("%s must be one of: %s.", field, fe.Param()))
	default:
		return apierr.Validation(field + " is invalid.")
	}
}
