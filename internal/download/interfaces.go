package download

import (
	"context"

	"github.com/chget/chplus-dl/internal/model"
)

// SessionIssuer mints single-use streaming sessions and maps them to edge
// index URLs. A session can be consumed or expire at any time; the service
// asks for a fresh one whenever the edge rejects the current one.
type SessionIssuer interface {
	SessionID(ctx context.Context, code model.ContentCode) (model.SessionID, error)
	IndexURL(session model.SessionID) string
}

// Transcoder converts a concatenated transport stream into its final
// container, reporting fractional progress as it goes.
type Transcoder interface {
	Run(ctx context.Context, inputPath, outputPath string, onProgress func(float64)) error
}
