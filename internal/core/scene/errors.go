package scene

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Structural errors

	ErrCycle         = errors.New("node cannot become its own ancestor")
	ErrNodeNotFound  = errors.New("node not found")
	ErrRootImmutable = errors.New("root node cannot be detached or removed")

	// Capability errors

	ErrNoVisibility    = errors.New("node has no visibility component")
	ErrMissingMetadata = errors.New("catalog node has no metadata")

	// Computation errors

	ErrNonFinite      = errors.New("transform is not finite")
	ErrTransformPanic = errors.New("transformer panicked")

	ErrInvalidDescription = errors.New("invalid scene description")
)

// TransformError reports a node whose local transform could not be computed
// for one instant. The node keeps its previous local transform.
type TransformError struct {
	Node    NodeID
	Name    string
	Instant time.Time
	Err     error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("node %q (%s) at %s: %v", e.Name, e.Node, e.Instant.UTC().Format(time.RFC3339Nano), e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }
