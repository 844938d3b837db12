package usecase

import (
	"strings"

	domainErrors "github.com/polkiloo/orderpipeline/internal/domain/errors"
	"github.com/polkiloo/orderpipeline/internal/domain/model"
)

// ValidateIntent checks the intake fields and returns the trimmed intent.
func ValidateIntent(intent model.OrderIntent) (model.OrderIntent, error) {
	intent.CustomerID = strings.TrimSpace(intent.CustomerID)
	intent.ProductID = strings.TrimSpace(intent.ProductID)

	switch {
	case intent.CustomerID == "":
		return intent, domainErrors.NewValidationError("customerId", "must not be empty")
	case intent.ProductID == "":
		return intent, domainErrors.NewValidationError("productId", "must not be empty")
	case intent.Quantity <= 0:
		return intent, domainErrors.NewValidationError("quantity", "must be a positive integer")
	case !intent.TotalAmount.IsPositive():
		return intent, domainErrors.NewValidationError("totalAmount", "must be greater than zero")
	}
	return intent, nil
}
