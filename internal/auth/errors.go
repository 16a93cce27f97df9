package auth

import "net/http"

// Error codes reported by the service.
const (
	CodeEmailInUse        = "email-already-in-use"
	CodeInvalidEmail      = "invalid-email"
	CodeWeakPassword      = "weak-password"
	CodeInvalidCredential = "invalid-credential"
	CodeInvalidRefresh    = "invalid-refresh"
	CodeInvalidToken      = "invalid-token"
)

var messages = map[string]string{
	CodeEmailInUse:        "This email is already registered.",
	CodeInvalidEmail:      "The email address is not valid.",
	CodeWeakPassword:      "The password must be at least 6 characters long.",
	CodeInvalidCredential: "Incorrect email or password.",
	CodeInvalidRefresh:    "The session has expired, please sign in again.",
	CodeInvalidToken:      "Authentication required.",
}

// Error is an authentication failure the user can act on.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// Status is the HTTP status matching the error code.
func (e *Error) Status() int {
	switch e.Code {
	case CodeEmailInUse:
		return http.StatusConflict
	case CodeInvalidEmail, CodeWeakPassword:
		return http.StatusBadRequest
	default:
		return http.StatusUnauthorized
	}
}

func newError(code string) *Error { return &Error{Code: code, Message: messages[code]} }
