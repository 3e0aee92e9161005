package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	rerrors "github.com/readbori/pulse-diary/internal/errors"
)

// permanentClasses are SQLSTATE classes a retry cannot fix: data exceptions,
// constraint violations, authorization and syntax/access errors.
var permanentClasses = map[string]bool{
	"22": true,
	"23": true,
	"28": true,
	"42": true,
}

// classify wraps err so the push executor knows whether to retry it.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		category := rerrors.Recoverable
		if len(pgErr.Code) >= 2 && permanentClasses[pgErr.Code[:2]] {
			category = rerrors.Irrecoverable
		}
		return &rerrors.ClassifiedError{
			Category:   category,
			Code:       pgErr.Code,
			Underlying: fmt.Errorf("%s: %w", op, err),
		}
	}
	return rerrors.NewNetworkError(op, err)
}
