package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"callsubs-backend/pkg/sanitize"
)

// RegisterValidators adds the custom binding tags used by request structs
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	return v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return sanitize.ValidSlug(fl.Field().String())
	})
}
