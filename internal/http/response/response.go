package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
)

// StatusForError maps a pipeline error kind to an HTTP status and error code.
func StatusForError(err error) (int, string) {
	kind := types.KindOf(err)
	switch kind {
	case types.KindConfiguration, types.KindMapping:
		return http.StatusBadRequest, string(kind)
	case types.KindConflict, types.KindLocked:
		return http.StatusConflict, string(kind)
	case types.KindAggregation:
		return http.StatusBadGateway, string(kind)
	}
	if kind == "" {
		kind = types.KindInternal
	}
	return http.StatusInternalServerError, string(kind)
}

// RespondPipelineError writes err in the error envelope with the status of its kind.
// Pipeline errors carry the failing identity key and upsert progress as extra fields.
func RespondPipelineError(c *gin.Context, err error) {
	status, code := StatusForError(err)
	env := ErrorEnvelope{Error: APIError{Message: "unknown error", Code: code}}
	if err != nil {
		env.Error.Message = err.Error()
	}
	var pe *types.PipelineError
	if errors.As(err, &pe) {
		env.Error.Stage = pe.Stage
		env.Error.IdentityKey = pe.IdentityKey
		env.Error.Upserted = pe.Upserted
	}
	abort(c, status, env.Error, err)
}
