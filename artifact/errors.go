package artifact

import "errors"

var (
	// ErrSchemaViolation indicates a record is missing its content hash or
	// declares an ancestor id that cannot be resolved. The record is
	// rejected before it reaches the artifact file.
	ErrSchemaViolation = errors.New("artifact schema violation")

	// ErrArtifactMissing indicates a stage's upstream artifact file does
	// not exist yet.
	ErrArtifactMissing = errors.New("artifact file missing")
)
