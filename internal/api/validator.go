package api

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	app_errors "ember-chat/backend/internal/errors"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate
	once     sync.Once
)

func getInstance() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
	})
	return validate
}

// validateRequest checks a payload against its `validate` field tags and
// returns a wrapped app_errors.ErrValidation listing every failed field.
func validateRequest(payload interface{}) error {
	if err := getInstance().Struct(payload); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return fmt.Errorf("%w: an unexpected error occurred during validation: %s", app_errors.ErrValidation, err.Error())
		}

		messages := make([]string, 0, len(validationErrors))
		for _, fieldErr := range validationErrors {
			messages = append(messages, fmt.Sprintf("Field '%s' failed on the '%s' tag", fieldErr.Field(), fieldErr.Tag()))
		}
		return fmt.Errorf("%w: %s", app_errors.ErrValidation, strings.Join(messages, "; "))
	}
	return nil
}
