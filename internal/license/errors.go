package license

import "errors"

// Domain failures surfaced by the activation/validation service. The HTTP
// layer maps these onto status codes and machine-readable error codes;
// anything not listed here is treated as an internal error.
var (
	ErrLicenseNotFound      = errors.New("license not found")
	ErrDuplicateKey         = errors.New("license key already exists")
	ErrLicenseNotActive     = errors.New("license is not active")
	ErrLicenseExpired       = errors.New("license has expired")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrDeviceBoundElsewhere = errors.New("device already registered with different license")

	ErrTokenMissing = errors.New("token is missing")
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("token is invalid")
)
