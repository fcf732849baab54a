package handler

import (
	"errors"
	"io"

	"github.com/cuongbtq/jobpost-payments/internal/api/domain"
	"github.com/cuongbtq/jobpost-payments/internal/pricing"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators adds the custom binding tags to gin's validator.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not validator/v10")
	}
	return v.RegisterValidation("classification", func(fl validator.FieldLevel) bool {
		return pricing.IsKnown(fl.Field().String())
	})
}

var errInvalidBody = errors.New("invalid request body")

// bindingError turns a bind failure into the validation error the caller
// sees. Bodies that are not JSON at all get errInvalidBody.
func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "classification" {
				return domain.ErrInvalidClassification
			}
		}
		return domain.ErrMissingFields
	}
	if errors.Is(err, io.EOF) {
		return domain.ErrMissingFields
	}
	return errInvalidBody
}
