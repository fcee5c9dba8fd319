package registry

import "github.com/Laisky/errors/v2"

// Sentinel errors surfaced by registry operations. Callers branch with
// errors.Is; the wrapped message names the offending id.
var (
	ErrDuplicateTool     = errors.New("duplicate tool")
	ErrInvalidTool       = errors.New("invalid tool")
	ErrDuplicatePlugin   = errors.New("duplicate plugin")
	ErrMissingDependency = errors.New("missing plugin dependency")
)
