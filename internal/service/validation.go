package service

import (
	"errors"
	"reflect"
	"strings"

	"storefront-service/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func trimCustomer(info models.CustomerInfo) models.CustomerInfo {
	return models.CustomerInfo{
		Name:    strings.TrimSpace(info.Name),
		Email:   strings.TrimSpace(info.Email),
		Address: strings.TrimSpace(info.Address),
		City:    strings.TrimSpace(info.City),
		State:   strings.TrimSpace(info.State),
		ZipCode: strings.TrimSpace(info.ZipCode),
		Phone:   strings.TrimSpace(info.Phone),
	}
}

func trimAddress(addr models.ProfileAddress) models.ProfileAddress {
	return models.ProfileAddress{
		Name:    strings.TrimSpace(addr.Name),
		Address: strings.TrimSpace(addr.Address),
		City:    strings.TrimSpace(addr.City),
		State:   strings.TrimSpace(addr.State),
		ZipCode: strings.TrimSpace(addr.ZipCode),
		Phone:   strings.TrimSpace(addr.Phone),
	}
}

func validateCustomer(info models.CustomerInfo) error {
	return validateFields(info)
}

// validateFields returns nil or a *ValidationError keyed by JSON field name
func validateFields(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return &ValidationError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	default:
		return "is invalid"
	}
}
