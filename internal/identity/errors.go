package identity

// AuthError результат неудачного входа или регистрации. Message показывается пользователю.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.Err }

// SaveError результат неудачного сохранения. Подробности сбоя хранилища
// в Message не попадают.
type SaveError struct {
	Message string
	Err     error
}

func (e *SaveError) Error() string { return e.Message }

func (e *SaveError) Unwrap() error { return e.Err }

const (
	msgNotAuthenticated = "not authenticated"
	msgSaveFailed       = "failed to save data"
	msgLoginFailed      = "login failed"
	msgSignupFailed     = "signup failed"
)
