package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Patient is a patient record as the API serves it. MRN is the
// facility-scoped medical record number.
type Patient struct {
	ID                    int64    `json:"id,omitempty"`
	MRN                   string   `json:"mrn"`
	FirstName             string   `json:"firstName"`
	LastName              string   `json:"lastName"`
	Gender                string   `json:"gender"`
	DateOfBirth           string   `json:"dateOfBirth"`
	PhoneNumber           string   `json:"phoneNumber"`
	Email                 string   `json:"email"`
	Address               string   `json:"address"`
	InsuranceProvider     string   `json:"insuranceProvider,omitempty"`
	InsurancePolicyNumber string   `json:"insurancePolicyNumber,omitempty"`
	FacilityID            int64    `json:"facilityId"`
	Services              []string `json:"services"`
	CreatedAt             string   `json:"createdAt,omitempty"`
	UpdatedAt             string   `json:"updatedAt,omitempty"`
}

// ListPatients fetches patients, optionally filtered to one facility
// (facilityID > 0).
func (c *Client) ListPatients(ctx context.Context, facilityID int64) ([]Patient, error) {
	query := url.Values{}
	if facilityID > 0 {
		query.Set("facilityId", strconv.FormatInt(facilityID, 10))
	}

	data, err := c.do(ctx, http.MethodGet, "/patients", query, nil)
	if err != nil {
		return nil, err
	}

	var patients []Patient
	if err := decodeList(data, &patients); err != nil {
		return nil, err
	}
	return patients, nil
}

// GetPatient fetches one patient by id.
func (c *Client) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	data, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/patients/%d", id), nil, nil)
	if err != nil {
		return nil, err
	}

	var patient Patient
	if err := decodeInto(data, &patient); err != nil {
		return nil, err
	}
	return &patient, nil
}

// CreatePatient creates a patient and returns the stored record.
func (c *Client) CreatePatient(ctx context.Context, patient *Patient) (*Patient, error) {
	data, err := c.do(ctx, http.MethodPost, "/patients", nil, patient)
	if err != nil {
		return nil, err
	}

	created := *patient
	if err := decodeInto(data, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdatePatient updates a patient and returns the stored record.
func (c *Client) UpdatePatient(ctx context.Context, id int64, patient *Patient) (*Patient, error) {
	data, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/patients/%d", id), nil, patient)
	if err != nil {
		return nil, err
	}

	updated := *patient
	updated.ID = id
	if err := decodeInto(data, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeletePatient deletes a patient by id.
func (c *Client) DeletePatient(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/patients/%d", id), nil, nil)
	return err
}

// SearchPatients runs a free-text patient search. The result is the server's
// filtered list, unwrapped from the envelope and nothing more.
func (c *Client) SearchPatients(ctx context.Context, q string) ([]Patient, error) {
	query := url.Values{"q": {q}}

	data, err := c.do(ctx, http.MethodGet, "/patients/search", query, nil)
	if err != nil {
		return nil, err
	}

	var patients []Patient
	if err := decodeList(data, &patients); err != nil {
		return nil, err
	}
	return patients, nil
}
