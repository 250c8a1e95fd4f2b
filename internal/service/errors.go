package service

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/crm-access/internal/auth"
	apperrors "github.com/spec-kit/crm-access/pkg/util/errorutil"
)

func errInvalidCredentials() error {
	return apperrors.Wrap("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, auth.ErrInvalidCredentials)
}

func errForbidden() error {
	return apperrors.Wrap("FORBIDDEN", "forbidden", http.StatusForbidden, auth.ErrUnauthorized)
}

// errUnavailable marks a store failure as retryable. Callers deny access.
func errUnavailable(err error) error {
	return apperrors.NewUnavailable(fmt.Errorf("%w: %w", auth.ErrUnavailable, err))
}

func isNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isUnavailable(err error) bool {
	return errors.Is(err, auth.ErrUnavailable)
}

func errDuplicateEmail() error {
	return apperrors.Wrap("DUPLICATE_EMAIL", "email already registered", http.StatusConflict, auth.ErrDuplicateEmail)
}
