// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import "fmt"

// ErrorKind classifies an engine error (spec.md §6.1, §7).
// Operations return a *Error wrapping one of these instead of
// relying on sentinel errors or exceptions, so callers can switch
// on Kind without string matching.
type ErrorKind int

// Error kinds.
const (
	Success ErrorKind = iota
	GenericError
	WrongArgument
	TooManyInstances
	WrongInstance
	FrameNotStarted
	FrameNotEnded
	WrongMovableUpdate
	WrongStaticTexCoordUpdate
	CannotUpdateDynamicMaterial
	CannotUpdateAnimatedMaterial
	IDNotUnique
	TooManySectors
)

func (k ErrorKind) String() string {
	switch k {
	case Success:
		return "success"
	case GenericError:
		return "generic_error"
	case WrongArgument:
		return "wrong_argument"
	case TooManyInstances:
		return "too_many_instances"
	case WrongInstance:
		return "wrong_instance"
	case FrameNotStarted:
		return "frame_not_started"
	case FrameNotEnded:
		return "frame_not_ended"
	case WrongMovableUpdate:
		return "wrong_movable_update"
	case WrongStaticTexCoordUpdate:
		return "wrong_static_texcoord_update"
	case CannotUpdateDynamicMaterial:
		return "cannot_update_dynamic_material"
	case CannotUpdateAnimatedMaterial:
		return "cannot_update_animated_material"
	case IDNotUnique:
		return "id_not_unique"
	case TooManySectors:
		return "too_many_sectors"
	default:
		return "unknown_error"
	}
}

// Error is the error type returned by every public engine operation
// that can fail for a reason classified by ErrorKind.
type Error struct {
	Kind   ErrorKind
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// newErr builds an *Error, the Taxonomy class of which the caller
// determines from Kind (Misuse, Capacity, Device-lost, Transient —
// spec.md §7). It is the single construction point so every error
// path is consistent.
func newErr(kind ErrorKind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Kind extracts the ErrorKind from err, returning GenericError for
// any error not produced by this package.
func Kind(err error) ErrorKind {
	if err == nil {
		return Success
	}
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return GenericError
}
