package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestSearchPatients_EnvelopePassThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/patients/search" {
			t.Errorf("expected path /patients/search, got %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "Jane" {
			t.Errorf("expected q=Jane, got %q", got)
		}
		w.Write([]byte(`{"success":true,"data":[{"mrn":"M001","firstName":"Jane","lastName":"Doe","facilityId":1}]}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Logger: zerolog.Nop()})

	patients, err := client.SearchPatients(context.Background(), "Jane")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The consumer receives exactly the server's list, unwrapped from the
	// envelope and nothing more.
	if len(patients) != 1 {
		t.Fatalf("expected 1 patient, got %d", len(patients))
	}
	if patients[0].MRN != "M001" || patients[0].FirstName != "Jane" {
		t.Errorf("unexpected patient: %+v", patients[0])
	}
}

func TestListPatients_FacilityFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/patients" {
			t.Errorf("expected path /patients, got %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("facilityId"); got != "7" {
			t.Errorf("expected facilityId=7, got %q", got)
		}
		w.Write([]byte(`{"success":true,"data":[]}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Logger: zerolog.Nop()})
	if _, err := client.ListPatients(context.Background(), 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListPatients_NoFilterOmitsParam(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("facilityId") {
			t.Error("expected no facilityId param")
		}
		w.Write([]byte(`{"success":true,"data":[]}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Logger: zerolog.Nop()})
	if _, err := client.ListPatients(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreatePatient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/patients" {
			t.Errorf("expected POST /patients, got %s %s", r.Method, r.URL.Path)
		}
		var body Patient
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		if body.MRN != "M034" {
			t.Errorf("expected mrn M034, got %s", body.MRN)
		}
		body.ID = 34
		payload, _ := json.Marshal(body)
		w.Write([]byte(`{"success":true,"data":` + string(payload) + `}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Logger: zerolog.Nop()})
	created, err := client.CreatePatient(context.Background(), &Patient{
		MRN:        "M034",
		FirstName:  "Jane",
		LastName:   "Doe",
		Gender:     "FEMALE",
		FacilityID: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID != 34 {
		t.Errorf("expected server-assigned id 34, got %d", created.ID)
	}
}

func TestUpdateAndDeletePatient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/patients/12":
			w.Write([]byte(`{"success":true,"data":{"id":12,"mrn":"M012"}}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/patients/12":
			w.Write([]byte(`{"success":true,"data":null}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Logger: zerolog.Nop()})

	updated, err := client.UpdatePatient(context.Background(), 12, &Patient{MRN: "M012"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.ID != 12 {
		t.Errorf("expected id 12, got %d", updated.ID)
	}

	if err := client.DeletePatient(context.Background(), 12); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetFacility(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/facilities/3" {
			t.Errorf("expected path /facilities/3, got %s", r.URL.Path)
		}
		w.Write([]byte(`{"success":true,"data":{"id":3,"name":"General Hospital","type":"HOSPITAL"}}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Logger: zerolog.Nop()})
	facility, err := client.GetFacility(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if facility.Name != "General Hospital" {
		t.Errorf("expected General Hospital, got %s", facility.Name)
	}
}

func TestListServices_FallbackCatalog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Logger: zerolog.Nop()})

	services, err := client.ListServices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(services) != 3 {
		t.Fatalf("expected 3 catalog services, got %d", len(services))
	}
	if services[0].Name != "Blood Test" || services[0].Type != ServiceTypeLab {
		t.Errorf("unexpected first catalog entry: %+v", services[0])
	}

	labs, err := client.ListServicesByType(context.Background(), ServiceTypeLab)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(labs) != 1 || labs[0].Name != "Blood Test" {
		t.Errorf("expected only the lab service, got %+v", labs)
	}
}

func TestListServices_ServerCatalog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":[{"id":"9","name":"MRI","type":"RADIOLOGY","price":400}]}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Logger: zerolog.Nop()})
	services, err := client.ListServices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(services) != 1 || services[0].Name != "MRI" {
		t.Errorf("expected the server catalog, got %+v", services)
	}
}
