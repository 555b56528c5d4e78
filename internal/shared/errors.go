package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Remote tracking errors
	ErrRemoteQuery        = fmt.Errorf("remote query failed")
	ErrRemoteWrite        = fmt.Errorf("remote write failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Transfer errors
	ErrAmbiguousLookup  = fmt.Errorf("ambiguous or missing lookup")
	ErrDanglingRelation = fmt.Errorf("dangling relation target")
	ErrSkippedEndpoint  = fmt.Errorf("relation endpoint was not created")

	// Journal errors
	ErrRunNotFound = fmt.Errorf("run not found")

	// Input validation errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
