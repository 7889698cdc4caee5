package aggregates

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
)

// MapError classifies store failures. Conflicts come back wrapping
// types.ErrVersionConflict; everything else is tagged as a persistence failure.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *types.PipelineError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, types.ErrMultipleMatches) || errors.Is(err, types.ErrVersionConflict) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return types.NewPipelineError(types.KindPersistence, op, "", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505", "40001", "40P01", "55P03":
			// unique_violation, serialization_failure, deadlock, lock_not_available
			return fmt.Errorf("%s: %w: %w", op, types.ErrVersionConflict, err)
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "duplicate key"),
		strings.Contains(msg, "unique constraint"),
		strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "database is locked"):
		return fmt.Errorf("%s: %w: %w", op, types.ErrVersionConflict, err)
	default:
		return types.NewPipelineError(types.KindPersistence, op, "", err)
	}
}
