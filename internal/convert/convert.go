// Package convert transcodes proprietary camera formats into a
// browser-displayable encoding. Today that means HEIC/HEIF to JPEG; every
// other accepted format passes through untouched.
package convert

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/jdeng/goheif"

	_ "golang.org/x/image/webp" // register webp for image.Decode consumers
)

// jpegQuality is the fixed quality used when re-encoding converted images.
const jpegQuality = 85

// ErrUnsupported marks a conversion failure. The message is user-facing:
// the rest of the pipeline cannot proceed without displayable bytes.
var ErrUnsupported = errors.New("could not convert image; please use JPG, PNG or WebP instead")

// JPEGMime is the encoding label applied after conversion.
const JPEGMime = "image/jpeg"

var heicMimes = map[string]bool{
	"image/heic": true,
	"image/heif": true,
}

var heicExts = map[string]bool{
	".heic": true,
	".heif": true,
}

// Required reports whether the upload needs transcoding before it can be
// displayed. The declared MIME type is checked first, the file extension
// as a fallback signal, and finally the magic bytes, since browsers and
// OSes routinely mislabel HEIC files.
func Required(declaredMIME, fileName string, data []byte) bool {
	if heicMimes[strings.ToLower(declaredMIME)] {
		return true
	}
	if heicExts[strings.ToLower(filepath.Ext(fileName))] {
		return true
	}
	mt := mimetype.Detect(data)
	return mt.Is("image/heic") || mt.Is("image/heif")
}

// ToJPEG decodes HEIC bytes and re-encodes them as JPEG at the fixed
// quality setting, returning the new bytes and their encoding label.
// Failure here is fatal to the file being processed.
func ToJPEG(data []byte) ([]byte, string, error) {
	img, err := goheif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return buf.Bytes(), JPEGMime, nil
}
