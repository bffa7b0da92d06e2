package service

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"toolkit-proxy-go/internal/model"
)

// ErrMalformedRequest is returned when the request line does not contain
// both a method and a target separated by spaces.
var ErrMalformedRequest = errors.New("malformed request line")

// DecodeRequest converts the raw buffer to text one byte per character
// (ISO-8859-1), so every byte value maps to exactly one rune.
func DecodeRequest(raw []byte) (string, error) {
	text, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode request: %w", err)
	}
	return string(text), nil
}

// RequestMethod returns the first token of the request line, or "" when
// there is no space in text.
func RequestMethod(text string) string {
	method, _, ok := strings.Cut(text, " ")
	if !ok {
		return ""
	}
	return method
}

// AdjustRequest rewrites an inbound request into a GET of the same target
// with host as the only header. The method, HTTP version, headers and any
// body in text are discarded.
func AdjustRequest(text, host string) (model.AdjustedRequest, error) {
	_, rest, ok := strings.Cut(text, " ")
	if !ok {
		return model.AdjustedRequest{}, fmt.Errorf("%w: no space after method", ErrMalformedRequest)
	}
	target, _, ok := strings.Cut(rest, " ")
	if !ok {
		return model.AdjustedRequest{}, fmt.Errorf("%w: no space after target", ErrMalformedRequest)
	}
	return model.NewAdjustedRequest(target, host), nil
}
