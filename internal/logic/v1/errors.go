// Package v1 provides listing business logic for API version 1.
//
// Error Handling:
// This package defines sentinel errors for the listing workflow. They are
// wrapped with context using fmt.Errorf("%w") when returned from business
// logic methods. Input validation failures from the query builders keep
// matching query.ErrValidation as well.
//
// Error Checking (in handlers):
//
//	switch {
//	case errors.Is(err, logicv1.ErrListingNotFound):
//	    c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
//	case errors.Is(err, logicv1.ErrInvalidListing), errors.Is(err, query.ErrValidation):
//	    c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
//	default:
//	    c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
//	}
package v1

import "errors"

// Sentinel errors for listing operations.
var (
	// ErrListingNotFound indicates no visible listing has the requested id.
	// HTTP Status: 404 Not Found
	ErrListingNotFound = errors.New("listing not found")

	// ErrInvalidListing indicates a create or update payload failed validation.
	// HTTP Status: 400 Bad Request
	ErrInvalidListing = errors.New("invalid listing")

	// ErrNoFieldsToUpdate indicates an update that sets no field.
	// HTTP Status: 400 Bad Request
	ErrNoFieldsToUpdate = errors.New("no fields to update")

	// ErrInvalidReviewAction indicates a review action other than approve or reject.
	// HTTP Status: 400 Bad Request
	ErrInvalidReviewAction = errors.New("invalid review action")

	// ErrNotPending indicates a review of a listing that is no longer pending.
	// HTTP Status: 409 Conflict
	ErrNotPending = errors.New("listing is not pending review")

	// ErrWriteFailed indicates the store rejected or could not run a write.
	// Writes never fall back to substitute data.
	// HTTP Status: 500 Internal Server Error
	ErrWriteFailed = errors.New("write failed")
)
