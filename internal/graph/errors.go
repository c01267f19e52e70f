package graph

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError reports a lookup of a node (or a memoized result) that
// does not exist. Callers commonly convert this into a default or a
// fallback value; it never aborts an update pass on its own.
type NotFoundError struct {
	Datasource string
	Name       string
	Path       string // set when a result lookup failed, not a node lookup
}

func (e *NotFoundError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("no result constructed for path %s", e.Path)
	}
	return fmt.Sprintf("no node %q in datasource %q", e.Name, e.Datasource)
}

// IsNotFound reports whether err is a NotFoundError, unwrapping as needed.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// PathErrorKind categorizes path resolution failures.
type PathErrorKind string

const (
	// PathNotFound means no directed walk connects two named segments.
	PathNotFound PathErrorKind = "PATH_NOT_FOUND"

	// AmbiguousNode means a path segment names no known node, or a bare
	// segment matches nodes in more than one datasource.
	AmbiguousNode PathErrorKind = "AMBIGUOUS_NODE"
)

// PathError reports that a partial path could not be resolved against
// the graph. These indicate a graph/template mismatch and are fatal at
// resolution time.
type PathError struct {
	Kind   PathErrorKind
	From   string // mangled name of the walk's start, when known
	To     string // mangled name of the walk's end, or the offending segment
	Within string // the partial path being resolved

	// Candidates lists the mangled names a bare segment matched, when
	// the failure was a multi-datasource collision.
	Candidates []string
}

func (e *PathError) Error() string {
	switch e.Kind {
	case AmbiguousNode:
		if len(e.Candidates) > 0 {
			return fmt.Sprintf("%s: segment %q in path %s matches several nodes: %s",
				e.Kind, e.To, e.Within, strings.Join(e.Candidates, ", "))
		}
		return fmt.Sprintf("%s: unknown segment %q in path %s", e.Kind, e.To, e.Within)
	default:
		return fmt.Sprintf("%s: no walk between %s and %s in path %s", e.Kind, e.From, e.To, e.Within)
	}
}

// IsPathNotFound reports whether err is a PathError with kind PathNotFound.
func IsPathNotFound(err error) bool {
	var pe *PathError
	return errors.As(err, &pe) && pe.Kind == PathNotFound
}

// IsAmbiguousNode reports whether err is a PathError with kind AmbiguousNode.
func IsAmbiguousNode(err error) bool {
	var pe *PathError
	return errors.As(err, &pe) && pe.Kind == AmbiguousNode
}

// CycleError reports that a structural mutation would have created a
// directed cycle. The mutation is rolled back before this is returned;
// the graph is unchanged.
type CycleError struct {
	// Node is the mangled name of the node whose mutation was rejected.
	Node string

	// Cycle is one example cycle, as a sequence of mangled names with
	// the first name repeated at the end.
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("adding %s would create a cycle: %s", e.Node, strings.Join(e.Cycle, " -> "))
}

// IsCycleError reports whether err is a CycleError, unwrapping as needed.
func IsCycleError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}
