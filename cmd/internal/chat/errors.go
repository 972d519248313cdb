package chat

import "errors"

var (
	// ErrNotParticipant is returned when the actor is not a member of the
	// target thread.
	ErrNotParticipant = errors.New("not a participant")

	// ErrNotAdmin is returned when a group-admin-only operation is attempted
	// by a non-admin.
	ErrNotAdmin = errors.New("not a group admin")

	// ErrAlreadyMember is returned when adding a user who already participates.
	ErrAlreadyMember = errors.New("already a member")

	// ErrNotMember is returned when removing a user who does not participate.
	ErrNotMember = errors.New("not a member")

	// ErrCannotRemoveAdmin is returned when member removal targets an admin.
	// Admins must be demoted first, a capability this core does not provide.
	ErrCannotRemoveAdmin = errors.New("cannot remove a group admin")

	// ErrBelowMinimumSize is returned when removal would shrink a group below
	// two participants.
	ErrBelowMinimumSize = errors.New("group below minimum size")

	// ErrInvalidGroupSize is returned when group creation yields fewer than
	// two effective participants.
	ErrInvalidGroupSize = errors.New("invalid group size")

	// ErrNotFound is returned when a referenced conversation, user, or
	// message is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for structurally invalid arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable wraps persistence-layer failures. The core never
	// retries; the caller decides whether to retry the whole operation.
	ErrStoreUnavailable = errors.New("store unavailable")
)
