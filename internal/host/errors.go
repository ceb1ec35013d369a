package host

import "errors"

var (
	// ErrRegistrationFailed is returned when a plugin's descriptor cannot be
	// fetched or declares no usable stages.
	ErrRegistrationFailed = errors.New("plugin registration failed")

	// ErrRequiredPluginFailed is returned when a required plugin fails to
	// decide an exchange.
	ErrRequiredPluginFailed = errors.New("required plugin failed to decide exchange")
)
