package participantdb

import "errors"

// Sentinel errors for the participant repository layer. These describe row
// presence/absence only; the verification service maps them into its own
// error taxonomy.
var (
	// ErrNotFound indicates the requested participant or credential row does
	// not exist.
	ErrNotFound = errors.New("participant record not found")

	// ErrCredentialInvalid indicates the stored token pair has been marked
	// unusable and the participant must reconnect.
	ErrCredentialInvalid = errors.New("credential marked invalid")
)
