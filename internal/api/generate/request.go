package generate

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/codr1/Stitchcraft/internal/api/apiutil"
	"github.com/codr1/Stitchcraft/internal/engine"
)

const (
	DefaultFabricCount = 14
	maxFabricCount     = 40

	imageFormField = "image"
)

// settings mirrors the pattern settings panel of the web client.
type settings struct {
	Width             int    `json:"width"`
	Height            int    `json:"height"`
	ColorCount        int    `json:"colorCount"`
	FabricCount       int    `json:"fabricCount"`
	ThreadType        string `json:"threadType"`
	IncludeBackstitch bool   `json:"includeBackstitch"`
}

type generateRequest struct {
	ImageData string   `json:"imageData"`
	Settings  settings `json:"settings"`
}

// parseRequest reads either a JSON body carrying a data URL or a multipart
// upload. It returns the engine request and the fabric count used for
// sizing.
func parseRequest(r *http.Request, maxUploadBytes int64) (engine.Request, int, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		image []byte
		s     settings
		err   error
	)
	switch mediaType {
	case "multipart/form-data":
		image, s, err = parseMultipart(r, maxUploadBytes)
	case "application/json", "":
		var body generateRequest
		if err = apiutil.DecodeJSONLenient(r, &body); err != nil {
			if apiutil.IsBodyTooLarge(err) {
				return engine.Request{}, 0, err
			}
			return engine.Request{}, 0, apiutil.HandlerError{
				Status:  http.StatusBadRequest,
				Kind:    apiutil.KindInvalidRequest,
				Message: "Invalid JSON body",
				Err:     err,
			}
		}
		s = body.Settings
		image, err = decodeImageData(body.ImageData)
		if err != nil {
			err = apiutil.FieldError{Field: "imageData", Reason: err.Error()}
		}
	default:
		return engine.Request{}, 0, apiutil.HandlerError{
			Status:  http.StatusUnsupportedMediaType,
			Kind:    apiutil.KindInvalidRequest,
			Message: fmt.Sprintf("Unsupported content type %q", mediaType),
		}
	}
	if err != nil {
		return engine.Request{}, 0, err
	}

	fabric := s.FabricCount
	if fabric == 0 {
		fabric = DefaultFabricCount
	}
	if fabric < 1 || fabric > maxFabricCount {
		return engine.Request{}, 0, apiutil.FieldError{
			Field:  "fabricCount",
			Reason: fmt.Sprintf("must be between 1 and %d", maxFabricCount),
		}
	}

	return engine.Request{
		Image:             image,
		Width:             s.Width,
		Height:            s.Height,
		MaxColors:         s.ColorCount,
		ThreadPalette:     s.ThreadType,
		IncludeBackstitch: s.IncludeBackstitch,
	}, fabric, nil
}

func parseMultipart(r *http.Request, maxUploadBytes int64) ([]byte, settings, error) {
	var s settings
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		if apiutil.IsBodyTooLarge(err) {
			return nil, s, err
		}
		return nil, s, apiutil.HandlerError{
			Status:  http.StatusBadRequest,
			Kind:    apiutil.KindInvalidRequest,
			Message: "Invalid multipart form",
			Err:     err,
		}
	}

	file, _, err := r.FormFile(imageFormField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, s, apiutil.FieldError{Field: imageFormField, Reason: "is required"}
		}
		return nil, s, fmt.Errorf("open uploaded image: %w", err)
	}
	defer file.Close()

	// One byte past the cap is enough for the engine to reject it by size.
	image, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return nil, s, fmt.Errorf("read uploaded image: %w", err)
	}

	ints := []struct {
		field string
		dst   *int
	}{
		{"width", &s.Width},
		{"height", &s.Height},
		{"colorCount", &s.ColorCount},
		{"fabricCount", &s.FabricCount},
	}
	for _, f := range ints {
		raw := strings.TrimSpace(r.FormValue(f.field))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, s, apiutil.FieldError{Field: f.field, Reason: "must be an integer"}
		}
		*f.dst = v
	}
	s.ThreadType = r.FormValue("threadType")
	if raw := strings.TrimSpace(r.FormValue("includeBackstitch")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, s, apiutil.FieldError{Field: "includeBackstitch", Reason: "must be true or false"}
		}
		s.IncludeBackstitch = v
	}
	return image, s, nil
}

var imageEncodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// decodeImageData accepts a base64 data URL (as produced by FileReader) or
// bare base64. An empty string decodes to no bytes.
func decodeImageData(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "data:") {
		comma := strings.IndexByte(raw, ',')
		if comma < 0 {
			return nil, errors.New("is not a valid data URL")
		}
		if !strings.HasSuffix(strings.ToLower(raw[len("data:"):comma]), ";base64") {
			return nil, errors.New("data URL must be base64 encoded")
		}
		raw = raw[comma+1:]
	}
	raw = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if raw == "" {
		return nil, nil
	}
	for _, enc := range imageEncodings {
		if data, err := enc.DecodeString(raw); err == nil {
			return data, nil
		}
	}
	return nil, errors.New("is not valid base64")
}

// finishedInches is the stitched size on fabric with the given count,
// rounded to a tenth of an inch.
func finishedInches(stitches, fabricCount int) float64 {
	return math.Round(float64(stitches)/float64(fabricCount)*10) / 10
}
