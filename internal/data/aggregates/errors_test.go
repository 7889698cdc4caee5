package aggregates

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
)

func TestMapError_UniqueViolationIsConflict(t *testing.T) {
	err := MapError("rollup.upsert", &pgconn.PgError{Code: "23505", Message: "duplicate"})
	if !errors.Is(err, types.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if types.KindOf(err) != types.KindConflict {
		t.Fatalf("expected conflict kind, got %q", types.KindOf(err))
	}
}

func TestMapError_MultipleMatchesPassThrough(t *testing.T) {
	err := MapError("rollup.upsert", RequireSingleMatch(2, "LOB1|A100"))
	if !errors.Is(err, types.ErrMultipleMatches) {
		t.Fatalf("expected multiple matches, got %v", err)
	}
}

func TestMapError_Persistence(t *testing.T) {
	for _, in := range []error{errors.New("connection refused"), context.DeadlineExceeded} {
		err := MapError("rollup.upsert", in)
		if types.KindOf(err) != types.KindPersistence {
			t.Fatalf("%v: expected persistence kind, got %q", in, types.KindOf(err))
		}
		if !errors.Is(err, in) {
			t.Fatalf("cause not preserved: %v", err)
		}
	}
}

func TestMapError_PassthroughPipelineError(t *testing.T) {
	in := types.NewPipelineError(types.KindInternal, "op", "vulnerability", errors.New("boom"))
	if out := MapError("other", in); out != error(in) {
		t.Fatalf("expected passthrough pipeline error")
	}
}
