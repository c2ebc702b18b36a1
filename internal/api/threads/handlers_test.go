package threads

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codr1/Stitchcraft/internal/api/apiutil"
	"github.com/codr1/Stitchcraft/internal/thread"
)

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/threads", HandleListPalettes)
	mux.HandleFunc("GET /api/v1/threads/{palette}", HandleGetPalette)
	return mux
}

func TestHandleListPalettes(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/threads", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Palettes []paletteSummary `json:"palettes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Palettes) != len(thread.Names) {
		t.Fatalf("palettes = %d, want %d", len(body.Palettes), len(thread.Names))
	}
	for i, p := range body.Palettes {
		if p.Name != thread.Names[i] || p.Count == 0 || p.Title == "" {
			t.Fatalf("palette[%d] = %+v", i, p)
		}
	}
}

func TestHandleGetPalette(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/threads/DMC", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body paletteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Name != thread.DMC || body.Count != len(body.Threads) {
		t.Fatalf("palette header = %+v", body.paletteSummary)
	}

	var found bool
	for _, th := range body.Threads {
		if th.Code == "blanc" {
			found = true
			if th.Hex != "#FFFFFF" || th.Color != "rgb(255, 255, 255)" {
				t.Fatalf("blanc = %+v", th)
			}
		}
	}
	if !found {
		t.Fatal("blanc missing from dmc listing")
	}
}

func TestHandleGetPaletteUnknown(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/threads/cosmo", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body apiutil.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Kind != apiutil.KindNotFound {
		t.Fatalf("kind = %q", body.Kind)
	}
}
