package device

import "errors"

// Errors returned by the device bridge. Check them with errors.Is.
var (
	// ErrBridgeUnavailable is returned when the bridge binary is not
	// installed or not in PATH.
	ErrBridgeUnavailable = errors.New("device bridge binary not available")

	// ErrCommandFailed is returned when the bridge exits non-zero.
	ErrCommandFailed = errors.New("device bridge command failed")

	// ErrMetadataMissing is returned when a stat response carries no
	// metadata object.
	ErrMetadataMissing = errors.New("device metadata not found in response")

	// ErrEntryExists is returned by Upload when the folder already holds a
	// document of the same name.
	ErrEntryExists = errors.New("device entry already exists")

	// ErrArchiveMissing is returned when a download reported success but
	// the expected archive is not on disk.
	ErrArchiveMissing = errors.New("downloaded archive not found")
)
