package interactions

import "fmt"

// UserError is an error that should be displayed to the user.
// The router answers it with an ephemeral message instead of logging it.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

var _ error = (*UserError)(nil)

// UserErrorf formats a UserError.
func UserErrorf(format string, args ...any) *UserError {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

// DuplicateCommandError is returned when a slash command name is registered
// twice.
type DuplicateCommandError struct {
	Name string
}

func (e *DuplicateCommandError) Error() string {
	return fmt.Sprintf("slash command %q is already registered", e.Name)
}

var _ error = (*DuplicateCommandError)(nil)
