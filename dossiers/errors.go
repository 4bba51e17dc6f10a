package dossiers

import (
	"errors"
	"fmt"
)

// ErrMalformedListing is returned when a listing page misses `dossiers` or
// `pagination`. It aborts the whole run.
var ErrMalformedListing = errors.New("malformed listing response")

// MalformedRecordError reports a dossier payload that does not have the shape
// the extraction relies on. It only affects that dossier.
type MalformedRecordError struct {
	DSID   int64
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.DSID == 0 {
		return fmt.Sprintf("malformed dossier: %s", e.Reason)
	}
	return fmt.Sprintf("malformed dossier %d: %s", e.DSID, e.Reason)
}

func malformed(dsID int64, format string, args ...any) error {
	return &MalformedRecordError{DSID: dsID, Reason: fmt.Sprintf(format, args...)}
}

// TransportError wraps a failed upstream call: network failure, non-2xx
// status or a body that is not JSON.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s: http %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
