package handler

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/ringboard/ringboard/internal/domain"
)

var validate = validator.New()

// Validate validates a struct using go-playground/validator tags, mapping
// the first failure to a domain.ValidationError.
func Validate(i any) error {
	if err := validate.Struct(i); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if ok && len(validationErrors) > 0 {
			fe := validationErrors[0]
			return &domain.ValidationError{
				Field:   fe.Field(),
				Message: fmt.Sprintf("failed on '%s' validation", fe.Tag()),
			}
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}
