package control

import "errors"

// Domain errors for the control catalogue.
var (
	// ErrUnknownMethod is returned for a method name not in the catalogue.
	ErrUnknownMethod = errors.New("control: unknown method")

	// ErrUnknownSetpoint is returned for a setpoint name not in the catalogue.
	ErrUnknownSetpoint = errors.New("control: unknown setpoint")

	// ErrInvalidArgument is returned when arguments do not match a method
	// signature or a value cannot be converted to a setpoint's wire type.
	ErrInvalidArgument = errors.New("control: invalid argument")

	// ErrInvalidWindow is returned for a retention window outside the
	// accepted range.
	ErrInvalidWindow = errors.New("control: invalid history window")

	// ErrUnknownRequest is returned for a request kind the catalogue
	// cannot build.
	ErrUnknownRequest = errors.New("control: unknown request kind")
)
