package recognizer

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/inkstone/handwriting-pipeline/internal/charmap"
)

// fixedModel returns a canned label sequence and records its input.
type fixedModel struct {
	labels []int
	gotW   int
	gotH   int
}

func (m *fixedModel) Predict(_ context.Context, img *image.Gray) ([]int, error) {
	m.gotW = img.Bounds().Dx()
	m.gotH = img.Bounds().Dy()
	return m.labels, nil
}

func encodeLabels(t *testing.T, m *charmap.Mapping, s string) []int {
	t.Helper()
	out, err := m.Encode(s, len(s)+10)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return out
}

func TestRecognize(t *testing.T) {
	m := charmap.New()
	model := &fixedModel{labels: encodeLabels(t, m, "Hello\nworld")}

	r, err := New(model, m, 576, 640, 2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	got, err := r.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 100, 50)))
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if got != "Hello\nworld" {
		t.Errorf("text: got %q, want %q", got, "Hello\nworld")
	}
	if model.gotW != 640 || model.gotH != 576 {
		t.Errorf("model input: got %dx%d, want 640x576", model.gotW, model.gotH)
	}
}

func TestRecognize_FullResolutionParagraphScan(t *testing.T) {
	m := charmap.New()
	model := &fixedModel{labels: encodeLabels(t, m, "x")}

	r, err := New(model, m, 576, 640, 2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// A paragraph crop at scan resolution: larger than the canvas, but
	// the stem's downsampling brings it to 620x550.
	if _, err := r.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 1240, 1100))); err != nil {
		t.Fatalf("Recognize failed for a scan-resolution paragraph: %v", err)
	}
	if model.gotW != 640 || model.gotH != 576 {
		t.Errorf("model input: got %dx%d, want 640x576", model.gotW, model.gotH)
	}
}

func TestRecognize_OversizedInputFitsCanvas(t *testing.T) {
	m := charmap.New()
	model := &fixedModel{labels: encodeLabels(t, m, "x")}

	r, err := New(model, m, 100, 100, 2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := r.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 4000, 3000))); err != nil {
		t.Fatalf("Recognize failed for oversized input: %v", err)
	}
	if model.gotW != 100 || model.gotH != 100 {
		t.Errorf("model input: got %dx%d, want 100x100", model.gotW, model.gotH)
	}
}

func TestHTTPModelPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sekrit" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ImageB64 == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(predictResponse{Labels: []int{1, 10, 2}})
	}))
	defer srv.Close()

	model, err := NewHTTPModel(srv.URL, "sekrit", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPModel failed: %v", err)
	}

	labels, err := model.Predict(context.Background(), image.NewGray(image.Rect(0, 0, 8, 8)))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(labels) != 3 || labels[1] != 10 {
		t.Errorf("labels: got %v, want [1 10 2]", labels)
	}
}

func TestHTTPModelPredict_Errors(t *testing.T) {
	t.Run("http error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		model, _ := NewHTTPModel(srv.URL, "", time.Second)
		if _, err := model.Predict(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4))); err == nil {
			t.Error("Predict should fail on HTTP error status")
		}
	})

	t.Run("model-reported error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(predictResponse{Error: "model not loaded"})
		}))
		defer srv.Close()

		model, _ := NewHTTPModel(srv.URL, "", time.Second)
		if _, err := model.Predict(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4))); err == nil {
			t.Error("Predict should surface model-reported errors")
		}
	})

	t.Run("missing url", func(t *testing.T) {
		if _, err := NewHTTPModel("", "", time.Second); err == nil {
			t.Error("NewHTTPModel should require a URL")
		}
	})
}
