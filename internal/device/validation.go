package device

import (
	"fmt"
	"strings"
)

const maxNameLength = 100

// Validate checks a device record before it is persisted.
func Validate(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: device is nil", ErrValidation)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(d.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrValidation, maxNameLength)
	}
	if strings.TrimSpace(d.Serial) == "" {
		return fmt.Errorf("%w: serial is required", ErrValidation)
	}
	if d.Platform != "android" && d.Platform != "ios" {
		return fmt.Errorf("%w: platform must be android or ios", ErrValidation)
	}
	if d.Status != "" && !d.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, d.Status)
	}
	if d.Role != "" && !d.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, d.Role)
	}
	return nil
}
