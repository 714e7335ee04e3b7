package api

import (
	"context"
	"fmt"
	"net/http"
)

// Facility is a care facility record.
type Facility struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email"`
	Type        string `json:"type"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

// ListFacilities fetches all facilities.
func (c *Client) ListFacilities(ctx context.Context) ([]Facility, error) {
	data, err := c.do(ctx, http.MethodGet, "/facilities", nil, nil)
	if err != nil {
		return nil, err
	}

	var facilities []Facility
	if err := decodeList(data, &facilities); err != nil {
		return nil, err
	}
	return facilities, nil
}

// GetFacility fetches one facility by id.
func (c *Client) GetFacility(ctx context.Context, id int64) (*Facility, error) {
	data, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/facilities/%d", id), nil, nil)
	if err != nil {
		return nil, err
	}

	var facility Facility
	if err := decodeInto(data, &facility); err != nil {
		return nil, err
	}
	return &facility, nil
}

// CreateFacility creates a facility and returns the stored record.
func (c *Client) CreateFacility(ctx context.Context, facility *Facility) (*Facility, error) {
	data, err := c.do(ctx, http.MethodPost, "/facilities", nil, facility)
	if err != nil {
		return nil, err
	}

	created := *facility
	if err := decodeInto(data, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateFacility updates a facility and returns the stored record.
func (c *Client) UpdateFacility(ctx context.Context, id int64, facility *Facility) (*Facility, error) {
	data, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/facilities/%d", id), nil, facility)
	if err != nil {
		return nil, err
	}

	updated := *facility
	updated.ID = id
	if err := decodeInto(data, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteFacility deletes a facility by id.
func (c *Client) DeleteFacility(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/facilities/%d", id), nil, nil)
	return err
}
