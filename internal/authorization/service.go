package authorization

import (
	"context"
	"errors"
)

type Service interface {
	// Authorize checks whether the actor may perform action on object.
	// Actors are "system" or "user:<id>"; user roles are re-read from the
	// users table on every call.
	Authorize(ctx context.Context, actor string, object string, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
