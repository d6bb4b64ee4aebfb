// Package codec serializes job payloads and results as self-describing
// JSON. Decoding is strict: unknown fields are rejected so that skew
// between a gateway request schema and the worker's handler surfaces as
// a decode error instead of silently dropped data.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Encode serializes a request or result value.
func Encode(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

// DecodeInto deserializes raw payload bytes into v, rejecting unknown
// fields and trailing garbage.
func DecodeInto(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	// A payload is exactly one JSON value.
	if dec.More() {
		return fmt.Errorf("failed to decode payload: trailing data")
	}
	return nil
}

// Decode is the generic form of DecodeInto.
func Decode[T any](raw []byte) (T, error) {
	var v T
	err := DecodeInto(raw, &v)
	return v, err
}
