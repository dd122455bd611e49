package node

import (
	"fmt"

	"github.com/grafana/monogit/protocol/object"
)

// MissingObjectError is returned when the tree walk needs an object that
// isn't present in the decoded pack cache the lookup was built from.
type MissingObjectError struct {
	ID string
}

func (e *MissingObjectError) Error() string {
	return fmt.Sprintf("node: object %s not found", e.ID)
}

func (e *MissingObjectError) Is(target error) bool {
	_, ok := target.(*MissingObjectError)
	return ok
}

// UnexpectedObjectKindError is returned when a tree entry's id resolves to
// an object of a kind the entry's mode didn't predict (e.g. a tree-mode
// entry pointing at a blob).
type UnexpectedObjectKindError struct {
	ID   string
	Want object.Type
	Got  object.Type
}

func (e *UnexpectedObjectKindError) Error() string {
	return fmt.Sprintf("node: object %s is kind %s, want %s", e.ID, e.Got, e.Want)
}

func (e *UnexpectedObjectKindError) Is(target error) bool {
	_, ok := target.(*UnexpectedObjectKindError)
	return ok
}
