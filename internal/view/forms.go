package view

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/emr/console/internal/api"
)

var validate = validator.New()

// PatientForm is the validated input for creating or updating a patient.
// Validation failures are caught here and never reach the API layer.
type PatientForm struct {
	MRN                   string   `validate:"required"`
	FirstName             string   `validate:"required"`
	LastName              string   `validate:"required"`
	Gender                string   `validate:"required,oneof=MALE FEMALE OTHER"`
	DateOfBirth           string   `validate:"required,datetime=2006-01-02"`
	PhoneNumber           string   `validate:"required"`
	Email                 string   `validate:"required,email"`
	Address               string   `validate:"required"`
	InsuranceProvider     string
	InsurancePolicyNumber string
	FacilityID            int64 `validate:"required,gt=0"`
	Services              []string
}

func (f *PatientForm) Validate() error {
	return translate(validate.Struct(f))
}

// Patient converts the validated form into an API record.
func (f *PatientForm) Patient() *api.Patient {
	return &api.Patient{
		MRN:                   f.MRN,
		FirstName:             f.FirstName,
		LastName:              f.LastName,
		Gender:                f.Gender,
		DateOfBirth:           f.DateOfBirth,
		PhoneNumber:           f.PhoneNumber,
		Email:                 f.Email,
		Address:               f.Address,
		InsuranceProvider:     f.InsuranceProvider,
		InsurancePolicyNumber: f.InsurancePolicyNumber,
		FacilityID:            f.FacilityID,
		Services:              f.Services,
	}
}

// FacilityForm is the validated input for creating or updating a facility.
type FacilityForm struct {
	Name        string `validate:"required"`
	Address     string `validate:"required"`
	PhoneNumber string `validate:"required"`
	Email       string `validate:"required,email"`
	Type        string `validate:"required"`
}

func (f *FacilityForm) Validate() error {
	return translate(validate.Struct(f))
}

// Facility converts the validated form into an API record.
func (f *FacilityForm) Facility() *api.Facility {
	return &api.Facility{
		Name:        f.Name,
		Address:     f.Address,
		PhoneNumber: f.PhoneNumber,
		Email:       f.Email,
		Type:        f.Type,
	}
}

// translate turns validator errors into operator-readable messages.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid email address", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		case "datetime":
			msgs = append(msgs, fmt.Sprintf("%s must be a date in YYYY-MM-DD form", fe.Field()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
