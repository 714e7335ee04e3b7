package view

import (
	"strings"
	"testing"
)

func validPatientForm() *PatientForm {
	return &PatientForm{
		MRN:         "M034",
		FirstName:   "Jane",
		LastName:    "Doe",
		Gender:      "FEMALE",
		DateOfBirth: "1987-04-12",
		PhoneNumber: "555-0134",
		Email:       "jane.doe@example.com",
		Address:     "12 Elm Street",
		FacilityID:  1,
	}
}

func TestPatientForm_Valid(t *testing.T) {
	if err := validPatientForm().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPatientForm_MissingRequired(t *testing.T) {
	form := validPatientForm()
	form.MRN = ""
	form.FirstName = ""

	err := form.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "MRN is required") {
		t.Errorf("expected MRN message, got %q", err)
	}
	if !strings.Contains(err.Error(), "FirstName is required") {
		t.Errorf("expected FirstName message, got %q", err)
	}
}

func TestPatientForm_MalformedEmail(t *testing.T) {
	form := validPatientForm()
	form.Email = "not-an-email"

	err := form.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "Email must be a valid email address") {
		t.Errorf("expected email message, got %q", err)
	}
}

func TestPatientForm_InvalidGenderAndDate(t *testing.T) {
	form := validPatientForm()
	form.Gender = "UNKNOWN"
	form.DateOfBirth = "12/04/1987"

	err := form.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "Gender must be one of") {
		t.Errorf("expected gender message, got %q", err)
	}
	if !strings.Contains(err.Error(), "YYYY-MM-DD") {
		t.Errorf("expected date message, got %q", err)
	}
}

func TestPatientForm_Conversion(t *testing.T) {
	form := validPatientForm()
	form.Services = []string{"Blood Test"}

	patient := form.Patient()
	if patient.MRN != "M034" || patient.FacilityID != 1 {
		t.Errorf("unexpected conversion: %+v", patient)
	}
	if len(patient.Services) != 1 || patient.Services[0] != "Blood Test" {
		t.Errorf("expected services carried over, got %v", patient.Services)
	}
}

func TestFacilityForm(t *testing.T) {
	form := &FacilityForm{
		Name:        "General Hospital",
		Address:     "1 Main Street",
		PhoneNumber: "555-0100",
		Email:       "contact@general.example.com",
		Type:        "HOSPITAL",
	}
	if err := form.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	form.Email = "nope"
	if err := form.Validate(); err == nil {
		t.Fatal("expected validation error for malformed email")
	}

	form.Email = "contact@general.example.com"
	form.Name = ""
	err := form.Validate()
	if err == nil || !strings.Contains(err.Error(), "Name is required") {
		t.Errorf("expected name message, got %v", err)
	}
}
