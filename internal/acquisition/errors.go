package acquisition

import "errors"

// Domain errors for the acquisition engine.
var (
	// ErrSubscriptionClosed is reported through Task.Fatal when the server
	// side of a push subscription stops delivering.
	ErrSubscriptionClosed = errors.New("acquisition: subscription stream closed")

	// ErrPollDegraded is reported through Task.Fatal when consecutive poll
	// failures reach the configured threshold.
	ErrPollDegraded = errors.New("acquisition: consecutive poll failures reached threshold")

	// ErrNilConn is returned when Start is called without a connection.
	ErrNilConn = errors.New("acquisition: nil connection")
)
