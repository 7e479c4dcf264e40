package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/burn"
	"github.com/avalove/avalove-ledger/internal/domain/earning"
)

// Validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	validate.RegisterValidation("earning_source", func(fl validator.FieldLevel) bool {
		return earning.Source(fl.Field().String()).Valid()
	})

	validate.RegisterValidation("completion_status", func(fl validator.FieldLevel) bool {
		return earning.CompletionStatus(fl.Field().String()).Valid()
	})

	validate.RegisterValidation("burn_type", func(fl validator.FieldLevel) bool {
		return burn.Type(fl.Field().String()).Valid()
	})

	// decimal strings such as "12.5"; negatives are rejected
	validate.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && !d.IsNegative()
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	errors := make(map[string]string)
	for _, err := range validationErrors {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "uuid":
			errors[field] = "Invalid UUID"
		case "earning_source":
			errors[field] = "Invalid source. Must be: game, music, watch, short_video, or swap"
		case "completion_status":
			errors[field] = "Invalid completion status. Must be: completed, in_progress, or abandoned"
		case "burn_type":
			errors[field] = "Invalid burn type"
		case "amount":
			errors[field] = "Amount must be a non-negative decimal"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}
