package models

import (
	"bytes"
	"io"

	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/geo"
)

// RawUpload is an immutable reference to one user-selected file. The
// orchestrator owns it for the duration of a single processing operation
// and does not retain it afterwards.
type RawUpload struct {
	Name string
	MIME string // declared type, may be empty or wrong; content wins
	Size int64
	Open func() (io.ReadCloser, error)
}

// NewRawUpload builds a RawUpload over an in-memory byte slice.
func NewRawUpload(name, mimeType string, data []byte) RawUpload {
	return RawUpload{
		Name: name,
		MIME: mimeType,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// NormalizedPhoto is the pipeline's output artifact. DataURI always
// decodes to browser-displayable bytes; MimeType reflects the final,
// post-conversion format.
type NormalizedPhoto struct {
	ID       string          `json:"id"`
	DataURI  string          `json:"dataUri"`
	Geo      *geo.Coordinate `json:"gps,omitempty"`
	MimeType string          `json:"mimeType"`
}
