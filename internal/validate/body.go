package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/requestdirectory/gateway/internal/registry"
)

// maxFormMemory bounds how much of a multipart body is held in memory while
// parsing; larger file parts spill to disk.
const maxFormMemory = 32 << 20

// Body is the decoded request body, a tagged variant selected by the
// endpoint's declared input type. Has reports whether a parameter is
// present under that type's presence rules.
type Body interface {
	Has(key string) bool
}

// JSONBody is a decoded application/json object. A key counts as present
// only when its value is truthy, mirroring how callers probe optional
// fields.
type JSONBody map[string]any

func (b JSONBody) Has(key string) bool {
	return truthy(b[key])
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}

// FormBody wraps a parsed multipart form. A key is present when the field
// exists at all, as a value or a file part.
type FormBody struct {
	Form *multipart.Form
}

func (b FormBody) Has(key string) bool {
	if b.Form == nil {
		return false
	}
	if vs, ok := b.Form.Value[key]; ok && len(vs) > 0 {
		return true
	}
	if fs, ok := b.Form.File[key]; ok && len(fs) > 0 {
		return true
	}
	return false
}

// ParseBody decodes the request body per the endpoint's declared input type.
// For JSON it returns both the decoded object and the raw bytes, so the
// proxy can forward exactly what was validated.
func ParseBody(r *http.Request, typ registry.InputType) (Body, []byte, error) {
	switch typ {
	case registry.InputJSON:
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read request body: %w", err)
		}
		var obj map[string]any
		if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&obj); err != nil {
			return nil, nil, fmt.Errorf("failed to decode json body: %w", err)
		}
		return JSONBody(obj), raw, nil

	case registry.InputForm:
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return nil, nil, fmt.Errorf("failed to parse multipart body: %w", err)
		}
		return FormBody{Form: r.MultipartForm}, nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported input type %q", typ)
	}
}
