package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/inkstone/handwriting-pipeline/internal/charmap"
	"github.com/inkstone/handwriting-pipeline/internal/recognizer"
)

// stubModel returns a canned label sequence or a fixed error.
type stubModel struct {
	labels []int
	err    error
}

func (m *stubModel) Predict(_ context.Context, _ *image.Gray) ([]int, error) {
	return m.labels, m.err
}

func newTestServer(t *testing.T, model recognizer.Model) *Server {
	t.Helper()
	rec, err := recognizer.New(model, charmap.New(), 64, 64, 1)
	if err != nil {
		t.Fatalf("recognizer.New failed: %v", err)
	}
	return New(rec, Config{})
}

func labelsFor(t *testing.T, s string) []int {
	t.Helper()
	out, err := charmap.New().Encode(s, len(s)+8)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return out
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 16, 16))); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	return buf.Bytes()
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("response body %q is not JSON: %v", rr.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &stubModel{labels: labelsFor(t, "x")})

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestRecognizeJSON(t *testing.T) {
	s := newTestServer(t, &stubModel{labels: labelsFor(t, "Hello")})

	b64 := base64.StdEncoding.EncodeToString(pngBytes(t))
	body, _ := json.Marshal(recognizeRequest{ImageB64: b64})
	req := httptest.NewRequest(http.MethodPost, "/v1/recognize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rr.Code, rr.Body.String())
	}
	var resp recognizeResponse
	decodeBody(t, rr, &resp)
	if resp.Text != "Hello" {
		t.Errorf("text: got %q, want %q", resp.Text, "Hello")
	}
}

func TestRecognizeJSON_DataURIPrefix(t *testing.T) {
	s := newTestServer(t, &stubModel{labels: labelsFor(t, "ok")})

	b64 := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t))
	body, _ := json.Marshal(recognizeRequest{ImageB64: b64})
	req := httptest.NewRequest(http.MethodPost, "/v1/recognize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rr.Code, rr.Body.String())
	}
}

func TestRecognizeMultipart(t *testing.T) {
	s := newTestServer(t, &stubModel{labels: labelsFor(t, "scan")})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "page.png")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if _, err := fw.Write(pngBytes(t)); err != nil {
		t.Fatalf("form write failed: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/recognize", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rr.Code, rr.Body.String())
	}
	var resp recognizeResponse
	decodeBody(t, rr, &resp)
	if resp.Text != "scan" {
		t.Errorf("text: got %q, want %q", resp.Text, "scan")
	}
}

func TestRecognize_BadInput(t *testing.T) {
	s := newTestServer(t, &stubModel{labels: labelsFor(t, "x")})

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", "{not json"},
		{"empty image", `{"image_b64": ""}`},
		{"invalid base64", `{"image_b64": "%%%"}`},
		{"not an image", `{"image_b64": "` + base64.StdEncoding.EncodeToString([]byte("plain text")) + `"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/recognize", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")

			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
			}
			var resp errorResponse
			decodeBody(t, rr, &resp)
			if resp.Error == "" {
				t.Error("error response should carry a message")
			}
		})
	}
}

func TestRecognize_ModelFailure(t *testing.T) {
	s := newTestServer(t, &stubModel{err: errors.New("backend down")})

	b64 := base64.StdEncoding.EncodeToString(pngBytes(t))
	body, _ := json.Marshal(recognizeRequest{ImageB64: b64})
	req := httptest.NewRequest(http.MethodPost, "/v1/recognize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadGateway)
	}
	var resp errorResponse
	decodeBody(t, rr, &resp)
	if resp.Error != "recognition failed" {
		t.Errorf("error: got %q, should not leak backend details", resp.Error)
	}
}
