package optimize_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BrightProgrammer7/OptiBlend/internal/optimize"
)

func sampleRequest() optimize.Request {
	return optimize.Request{
		WasteData: []optimize.WasteItem{
			{Name: "Tires", PCI: 8000, Chlorine: 0.01, Sulfur: 1.5, Humidity: 0.02, Stock: 100},
			{Name: "Wood", PCI: 4000, Chlorine: 0.02, Sulfur: 0.1, Humidity: 0.20, Stock: 50},
		},
		Constraints: optimize.Constraints{
			MaxChlorine: 0.03,
			MaxHumidity: 0.25,
			MaxSulfur:   1.0,
			MinPCI:      3000,
		},
	}
}

// consistentResult builds an API response whose objective matches its mix.
func consistentResult(req optimize.Request, mix map[string]float64) optimize.Result {
	res := optimize.Result{
		Status: "Optimal",
		Mix:    mix,
		Details: map[string]any{
			"final_chlorine": 0.0105,
			"final_humidity": 0.015,
			"final_sulfur":   0.77,
			"protocol":       "50/50 Nexus",
		},
	}
	res.ObjectiveValue = optimize.RecomputePCI(req, &res)
	return res
}

func TestClient_Solve(t *testing.T) {
	t.Parallel()
	req := sampleRequest()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/optimize" {
			t.Errorf("path = %q; want /api/optimize", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q; want POST", r.Method)
		}
		var got optimize.Request
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(got.WasteData) != 2 || got.WasteData[0].Name != "Tires" {
			t.Errorf("waste_data = %+v", got.WasteData)
		}
		if got.Constraints.MaxSulfur != 1.0 {
			t.Errorf("constraints = %+v", got.Constraints)
		}
		_ = json.NewEncoder(w).Encode(consistentResult(req, map[string]float64{
			optimize.PetcokeMixKey: 50.0,
			"Tires":                50.0,
		}))
	}))
	defer srv.Close()

	res, err := optimize.NewClient(srv.URL).Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Status != "Optimal" {
		t.Errorf("status = %q", res.Status)
	}
	if res.Mix["Tires"] != 50.0 {
		t.Errorf("mix = %v", res.Mix)
	}
	// 50% petcoke at 8200 plus 50% tires at 8000.
	if res.ObjectiveValue != 8100 {
		t.Errorf("objective = %v; want 8100", res.ObjectiveValue)
	}
}

func TestClient_InconsistentObjectiveRejected(t *testing.T) {
	t.Parallel()
	req := sampleRequest()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := consistentResult(req, map[string]float64{
			optimize.PetcokeMixKey: 50.0,
			"Tires":                50.0,
		})
		res.ObjectiveValue = 9999 // does not match the mix
		_ = json.NewEncoder(w).Encode(res)
	}))
	defer srv.Close()

	_, err := optimize.NewClient(srv.URL).Solve(context.Background(), req)
	if !errors.Is(err, optimize.ErrInconsistentResult) {
		t.Fatalf("err = %v; want ErrInconsistentResult", err)
	}
}

func TestClient_ValidationRejectsBadRequest(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("invalid request must not reach the API")
	}))
	defer srv.Close()

	c := optimize.NewClient(srv.URL)

	// No waste data.
	if _, err := c.Solve(context.Background(), optimize.Request{}); err == nil {
		t.Error("empty request should fail validation")
	}

	// Nameless stream.
	req := optimize.Request{WasteData: []optimize.WasteItem{{PCI: 5000}}}
	if _, err := c.Solve(context.Background(), req); err == nil {
		t.Error("nameless stream should fail validation")
	}

	// Negative stock.
	req = optimize.Request{WasteData: []optimize.WasteItem{
		{Name: "Tires", PCI: 8000, Stock: -1},
	}}
	if _, err := c.Solve(context.Background(), req); err == nil {
		t.Error("negative stock should fail validation")
	}
}

func TestClient_APIErrorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "solver exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := optimize.NewClient(srv.URL).Solve(context.Background(), sampleRequest())
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestClient_Unreachable(t *testing.T) {
	t.Parallel()
	_, err := optimize.NewClient("http://127.0.0.1:1").Solve(context.Background(), sampleRequest())
	if err == nil {
		t.Fatal("expected error for unreachable API")
	}
}
