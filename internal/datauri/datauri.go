// Package datauri encodes binary payloads as self-describing data URIs,
// the transferable form sent to the assistant and used directly as an
// image source by the presentation layer.
package datauri

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const prefix = "data:"

// Encode wraps data in a "data:<mime>;base64,<payload>" URI. Total over
// any byte sequence.
func Encode(mimeType string, data []byte) string {
	return prefix + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Payload returns the embedded MIME type and the still-encoded base64
// payload, for consumers (the assistant API) that want base64 as-is.
func Payload(uri string) (mimeType, b64 string, err error) {
	if !strings.HasPrefix(uri, prefix) {
		return "", "", fmt.Errorf("datauri: missing %q prefix", prefix)
	}
	meta, payload, ok := strings.Cut(uri[len(prefix):], ",")
	if !ok {
		return "", "", fmt.Errorf("datauri: no payload separator")
	}
	mimeType, found := strings.CutSuffix(meta, ";base64")
	if !found {
		return "", "", fmt.Errorf("datauri: not base64 encoded")
	}
	return mimeType, payload, nil
}

// Decode is the inverse of Encode, returning the embedded MIME type and
// the original bytes.
func Decode(uri string) (string, []byte, error) {
	mimeType, payload, err := Payload(uri)
	if err != nil {
		return "", nil, err
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("datauri: decode payload: %w", err)
	}
	return mimeType, data, nil
}
