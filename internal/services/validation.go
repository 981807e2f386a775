package services

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/HammerMeetNail/petpals/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationErrorFrom converts validator output into a ValidationError.
func validationErrorFrom(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// normalizePetInput trims free text and validates the result.
func normalizePetInput(in models.PetInput) (models.PetInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Breed = strings.TrimSpace(in.Breed)
	in.Bio = strings.TrimSpace(in.Bio)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	in.Gender = models.Gender(strings.ToLower(strings.TrimSpace(string(in.Gender))))
	if in.Location != nil {
		loc := strings.TrimSpace(*in.Location)
		if loc == "" {
			in.Location = nil
		} else {
			in.Location = &loc
		}
	}

	var verr *ValidationError
	if err := validate.Struct(in); err != nil {
		converted := validationErrorFrom(err)
		ve, ok := converted.(*ValidationError)
		if !ok {
			return in, converted
		}
		verr = ve
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		if verr == nil {
			verr = &ValidationError{}
		}
		verr.Fields = append(verr.Fields, FieldError{
			Field:   "latitude",
			Message: "latitude and longitude must be provided together",
		})
	}
	if verr != nil {
		return in, verr
	}
	return in, nil
}
