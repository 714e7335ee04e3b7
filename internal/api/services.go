package api

import (
	"context"
	"net/http"
	"net/url"
)

// Service type tags.
const (
	ServiceTypeLab          = "LAB"
	ServiceTypeRadiology    = "RADIOLOGY"
	ServiceTypeConsultation = "CONSULTATION"
)

// Service is a billable clinical service.
type Service struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price,omitempty"`
}

// defaultCatalog backs /services deployments that do not serve the endpoint
// yet.
var defaultCatalog = []Service{
	{
		ID:          "1",
		Name:        "Blood Test",
		Type:        ServiceTypeLab,
		Description: "Complete blood count and analysis",
		Price:       50,
	},
	{
		ID:          "2",
		Name:        "X-Ray",
		Type:        ServiceTypeRadiology,
		Description: "Digital X-ray imaging",
		Price:       100,
	},
	{
		ID:          "3",
		Name:        "General Consultation",
		Type:        ServiceTypeConsultation,
		Description: "General medical consultation",
		Price:       75,
	},
}

// ListServices fetches the service catalog. When the server does not expose
// the endpoint, the built-in catalog is returned instead.
func (c *Client) ListServices(ctx context.Context) ([]Service, error) {
	data, err := c.do(ctx, http.MethodGet, "/services", nil, nil)
	if err != nil {
		if IsNotFound(err) {
			catalog := make([]Service, len(defaultCatalog))
			copy(catalog, defaultCatalog)
			return catalog, nil
		}
		return nil, err
	}

	var services []Service
	if err := decodeList(data, &services); err != nil {
		return nil, err
	}
	return services, nil
}

// ListServicesByType fetches services of one type.
func (c *Client) ListServicesByType(ctx context.Context, serviceType string) ([]Service, error) {
	query := url.Values{"type": {serviceType}}

	data, err := c.do(ctx, http.MethodGet, "/services", query, nil)
	if err != nil {
		if IsNotFound(err) {
			var filtered []Service
			for _, svc := range defaultCatalog {
				if svc.Type == serviceType {
					filtered = append(filtered, svc)
				}
			}
			return filtered, nil
		}
		return nil, err
	}

	var services []Service
	if err := decodeList(data, &services); err != nil {
		return nil, err
	}
	return services, nil
}
