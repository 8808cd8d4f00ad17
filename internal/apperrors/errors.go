// Package apperrors defines the failure classes of the ingestion pipeline.
package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// AuthError is a token refresh or platform authorization failure. It is never retried
// automatically; an operator has to re-authorize the site.
type AuthError struct {
	SiteURL string
	Status  int
	Body    string
	Err     error
}

func (e *AuthError) Error() string {
	msg := "auth failed for site " + e.SiteURL
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// NotConfiguredError means a webhook referenced a site or host with no matching configuration.
// The event is dropped with a warning; it is not a failure for the caller.
type NotConfiguredError struct {
	SiteURL    string
	HostUserID string
	HostEmail  string
}

func (e *NotConfiguredError) Error() string {
	switch {
	case e.HostUserID == "" && e.HostEmail == "":
		return fmt.Sprintf("site %q is not configured", e.SiteURL)
	default:
		return fmt.Sprintf("no configured host on site %q matches user id %q / email %q", e.SiteURL, e.HostUserID, e.HostEmail)
	}
}

// ArtifactError is a missing download link or a failed artifact download/store.
type ArtifactError struct {
	RecordingID string
	Artifact    string // "recording" or "transcript"
	Reason      string
	Err         error
}

func (e *ArtifactError) Error() string {
	msg := fmt.Sprintf("%s artifact for %s: %s", e.Artifact, e.RecordingID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ArtifactError) Unwrap() error { return e.Err }

// TransientNetworkError is a timeout or 5xx from the platform; safe to retry at the next natural trigger.
type TransientNetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransientNetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: transient status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// IsAuth reports whether err is (or wraps) an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsNotConfigured reports whether err is (or wraps) a NotConfiguredError.
func IsNotConfigured(err error) bool {
	var nc *NotConfiguredError
	return errors.As(err, &nc)
}

// IsArtifact reports whether err is (or wraps) an ArtifactError.
func IsArtifact(err error) bool {
	var ae *ArtifactError
	return errors.As(err, &ae)
}

// IsTransient reports whether err is (or wraps) a TransientNetworkError.
func IsTransient(err error) bool {
	var te *TransientNetworkError
	return errors.As(err, &te)
}
