package auth

// Kind classifies an auth failure for the transport layer.
type Kind int

const (
	KindInvalid      Kind = iota + 1 // bad input or state; 400
	KindUnauthorized                 // missing credentials or unknown subject; 401
	KindForbidden                    // credentials present but rejected; 403
	KindThrottled                    // 429
)

// Error is a user-facing auth failure. Message is safe to return to clients.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newErr(k Kind, msg string) *Error { return &Error{Kind: k, Message: msg} }

var (
	ErrMissingFields      = newErr(KindInvalid, "All fields are required")
	ErrPasswordTooShort   = newErr(KindInvalid, "Password must be at least 6 characters")
	ErrPasswordTooLong    = newErr(KindInvalid, "Password must be at most 72 bytes")
	ErrPasswordMismatch   = newErr(KindInvalid, "Passwords do not match")
	ErrEmailTaken         = newErr(KindInvalid, "Email already registered")
	ErrUserNotFound       = newErr(KindInvalid, "User not found")
	ErrAlreadyVerified    = newErr(KindInvalid, "Email already verified")
	ErrInvalidCode        = newErr(KindInvalid, "Invalid verification code")
	ErrCodeExpired        = newErr(KindInvalid, "Verification code expired")
	ErrMissingCredentials = newErr(KindInvalid, "Email and password are required")
	ErrInvalidCredentials = newErr(KindInvalid, "Invalid email or password")
	ErrNotVerified        = newErr(KindInvalid, "Please verify your email before logging in")
	ErrTooManyAttempts    = newErr(KindThrottled, "Too many login attempts, please try again later")

	ErrTokenRequired = newErr(KindUnauthorized, "Access token required")
	ErrTokenSubject  = newErr(KindUnauthorized, "User not found")
	ErrInvalidToken  = newErr(KindForbidden, "Invalid token")
)
