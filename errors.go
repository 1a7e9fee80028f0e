package auth

import (
	"context"
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeProviderError      = "PROVIDER_ERROR"
	TextCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	TextCodeNoProfile          = "NO_PROFILE"
	TextCodeBlocked            = "SIGN_IN_BLOCKED"
	TextCodeInvalidInput       = "INVALID_INPUT"
	TextCodeInvalidTransition  = "INVALID_SESSION_TRANSITION"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	TextCodeSuperseded         = "SESSION_SUPERSEDED"
)

// ErrInvalidCredentials is returned when the email/password pair does not verify
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrProviderError is returned on network or identity/data service failures
var ErrProviderError = goerrors.New("identity service request failed", goerrors.CategoryOperation).
	WithTextCode(TextCodeProviderError).
	WithCode(http.StatusBadGateway)

// ErrProfileNotFound is returned when the role indexed profile lookup is empty
var ErrProfileNotFound = goerrors.New("profile not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeProfileNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrNoProfile is returned when an operation needs a loaded profile
var ErrNoProfile = goerrors.New("no profile loaded for the current session", goerrors.CategoryBadInput).
	WithTextCode(TextCodeNoProfile).
	WithCode(goerrors.CodeBadRequest)

// ErrBlocked is returned while the lockout is active
var ErrBlocked = goerrors.New("too many failed sign in attempts, try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeBlocked).
	WithCode(http.StatusTooManyRequests)

// ErrInvalidInput is returned when sign in or profile input fails validation
var ErrInvalidInput = goerrors.New("invalid input", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidInput).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidSessionTransition is returned when a session phase change is not allowed
var ErrInvalidSessionTransition = goerrors.New("invalid session transition", goerrors.CategoryConflict).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeConflict)

// ErrNoEmptyString is returned when hashing an empty secret
var ErrNoEmptyString = goerrors.New("password can not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrStorageUnavailable is returned when durable storage can not be read or written
var ErrStorageUnavailable = goerrors.New("client storage unavailable", goerrors.CategoryInternal).
	WithTextCode(TextCodeStorageUnavailable).
	WithCode(goerrors.CodeInternal)

// ErrSuperseded is returned when a newer session call started before this one
// finished, so its outcome was discarded
var ErrSuperseded = goerrors.New("session changed by a newer request", goerrors.CategoryConflict).
	WithTextCode(TextCodeSuperseded).
	WithCode(http.StatusConflict)

func withDetails(base *goerrors.Error, message string, metadata map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	if message != "" {
		clone.Message = message
	}
	clone.Source = base
	if len(metadata) > 0 {
		return clone.WithMetadata(metadata)
	}
	return clone
}

func invalidInput(message string, metadata map[string]any) error {
	return withDetails(ErrInvalidInput, message, metadata)
}

// providerError keeps the upstream message verbatim so the UI can surface it.
func providerError(err error) error {
	if err == nil {
		return nil
	}
	if hasTextCode(err, TextCodeProviderError) {
		return err
	}

	message := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		message = "identity service timed out"
	}

	return withDetails(ErrProviderError, message, map[string]any{
		"cause": err.Error(),
	})
}

func hasTextCode(err error, code string) bool {
	for err != nil {
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			return false
		}
		if rich.TextCode == code {
			return true
		}
		err = rich.Source
	}
	return false
}

// IsInvalidCredentials reports whether err is an invalid credentials failure
func IsInvalidCredentials(err error) bool {
	return hasTextCode(err, TextCodeInvalidCreds)
}

// IsProviderError reports whether err is a provider or network failure
func IsProviderError(err error) bool {
	return hasTextCode(err, TextCodeProviderError)
}

// IsBlocked reports whether err is an active lockout
func IsBlocked(err error) bool {
	return hasTextCode(err, TextCodeBlocked)
}

// IsProfileNotFound reports whether err is a missing profile
func IsProfileNotFound(err error) bool {
	return hasTextCode(err, TextCodeProfileNotFound)
}

// IsNoProfile reports whether err is a missing in memory profile
func IsNoProfile(err error) bool {
	return hasTextCode(err, TextCodeNoProfile)
}

// IsSuperseded reports whether err is a discarded, overtaken outcome
func IsSuperseded(err error) bool {
	return hasTextCode(err, TextCodeSuperseded)
}

// ErrorCode returns the text code of the first rich error in the chain.
func ErrorCode(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode
	}
	return ""
}

// HTTPStatus maps an error to a response status code.
func HTTPStatus(err error) int {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Code > 0 {
		return rich.Code
	}
	return http.StatusInternalServerError
}
