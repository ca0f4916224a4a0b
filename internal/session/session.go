// Package session holds the authenticated user's session and persists it to a
// local key-value file between process runs.
//
// A Session is loaded once at process start, passed explicitly to the API
// clients that need it, and saved again only after login, signup, or logout.
// Nothing in the transport layer mutates it.
package session

// Keys used in the persisted key-value file.
const (
	KeyToken    = "token"
	KeyUser     = "user"
	KeyUserID   = "userId"
	KeyUserName = "userName"
	KeyAppID    = "appId"
	KeyAppName  = "appName"
	KeyRoleID   = "roleId"
	KeyRole     = "role"
	KeyLanguage = "language"
)

// UserProfile is the user returned by the security service at login/signup.
type UserProfile struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Email   string `json:"email" yaml:"email"`
	Role    string `json:"role,omitempty" yaml:"role,omitempty"`
	RoleID  string `json:"roleId,omitempty" yaml:"roleId,omitempty"`
	AppID   string `json:"appId,omitempty" yaml:"appId,omitempty"`
	AppName string `json:"appName,omitempty" yaml:"appName,omitempty"`
}

// Session is the bearer token plus the profile of the signed-in user.
// The zero value is a signed-out session.
type Session struct {
	Token    string
	User     UserProfile
	Language string
}

// Authenticated reports whether the session carries a bearer token.
func (s *Session) Authenticated() bool {
	return s != nil && s.Token != ""
}

// BearerToken returns the token to attach as "Authorization: Bearer <token>",
// or "" for a nil or signed-out session.
func (s *Session) BearerToken() string {
	if s == nil {
		return ""
	}
	return s.Token
}

// UserID returns the signed-in user's identifier, or "".
func (s *Session) UserID() string {
	if s == nil {
		return ""
	}
	return s.User.ID
}
