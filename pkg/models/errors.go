package models

import "errors"

var (
	// ErrMalformedRecord is returned when a record has neither a name nor an address
	ErrMalformedRecord = errors.New("malformed record")
	// ErrAmbiguousMatch reports that several venues match a record equally well
	ErrAmbiguousMatch = errors.New("ambiguous match")
	// ErrRegistryUnavailable wraps any failure of the backing store
	ErrRegistryUnavailable = errors.New("registry unavailable")
	// ErrVenueNotFound is returned by registry reads for unknown ids
	ErrVenueNotFound = errors.New("venue not found")
	// ErrVersionConflict is returned when a venue changed between read and update
	ErrVersionConflict = errors.New("venue modified concurrently")
	// ErrInvalidEnrichment is returned when enrichment values fail validation
	ErrInvalidEnrichment = errors.New("invalid enrichment")
)
