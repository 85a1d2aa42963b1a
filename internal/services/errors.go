// Package services defines the business logic for deal curation, price
// refresh, and analytics. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrDealNotFound indicates that the requested deal does not exist.
	ErrDealNotFound = errors.New("deal not found")

	// ErrDuplicateDeal is returned when a deal with the same product URL
	// has already been curated.
	ErrDuplicateDeal = errors.New("deal already exists for this product URL")

	// ErrUnknownRetailer is returned when a curation request names a
	// retailer outside the supported set.
	ErrUnknownRetailer = errors.New("unknown retailer")

	// ErrInvalidURL is returned when a product URL is missing or not an
	// absolute http(s) URL.
	ErrInvalidURL = errors.New("product url must be an absolute http(s) url")

	// ErrInvalidPrice is returned when a curated price is zero or negative,
	// or when the original price is below the current price.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrMissingTitle is returned when a curation request has no title.
	ErrMissingTitle = errors.New("title is required")

	// ErrNotRefreshable is returned when a single-deal refresh is requested
	// for a deal excluded from automatic refresh (inactive or broken link).
	ErrNotRefreshable = errors.New("deal is excluded from refresh")
)
