package services

import (
	"errors"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/repositories"
)

var (
	// ErrPricingInvalidInput indicates the caller supplied an invalid pricing request.
	ErrPricingInvalidInput = errors.New("pricing service: invalid input")
	// ErrPriceUnavailable indicates no price row exists for the product in the requested or default tier.
	ErrPriceUnavailable = errors.New("pricing service: price unavailable")
	// ErrProductNotFound indicates the product does not exist.
	ErrProductNotFound = errors.New("pricing service: product not found")
	// ErrPricingConfiguration indicates the stored discount configuration is structurally broken.
	ErrPricingConfiguration = errors.New("pricing service: invalid discount configuration")
	// ErrPricingUnavailable indicates a backing store could not be reached.
	ErrPricingUnavailable = errors.New("pricing service: unavailable")
)

var (
	// ErrOrderItemInvalidInput indicates the caller supplied an invalid order line request.
	ErrOrderItemInvalidInput = errors.New("order item service: invalid input")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.New("order item service: order not found")
	// ErrOrderItemNotFound indicates the order line does not exist.
	ErrOrderItemNotFound = errors.New("order item service: item not found")
	// ErrOrderClosed indicates the order no longer accepts line changes.
	ErrOrderClosed = errors.New("order item service: order closed")
	// ErrOrderItemConflict indicates a concurrent write to the same line.
	ErrOrderItemConflict = errors.New("order item service: conflict")
	// ErrOrderItemUnavailable indicates a backing store could not be reached.
	ErrOrderItemUnavailable = errors.New("order item service: unavailable")
)

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsConflict()
	}
	return false
}
