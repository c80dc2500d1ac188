// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

// sampleRow is a representative cache index row using cbor struct tags
// (the convention for purely-internal types).
type sampleRow struct {
	Filename string `cbor:"filename"`
	Origin   string `cbor:"origin,omitempty"`
	Size     int64  `cbor:"size"`
}

// sampleDocument uses json struct tags (the convention for types that
// also appear in CLI output, relying on fxamacker's fallback).
type sampleDocument struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleRow{
		Filename: "requests-2.31.0.tar.gz",
		Origin:   "https://pypi.org",
		Size:     507000,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleRow
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	row := sampleRow{
		Filename: "idna-3.4-py3-none-any.whl",
		Origin:   "https://pypi.org",
		Size:     61538,
	}

	first, err := Marshal(row)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}

	second, err := Marshal(row)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestUnmarshalFirst(t *testing.T) {
	header := sampleRow{Filename: "urllib3-2.0.4.tar.gz", Size: 281900}
	payload := []byte("archive bytes follow the header")

	encoded, err := Marshal(header)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	blob := append(encoded, payload...)

	var decoded sampleRow
	rest, err := UnmarshalFirst(blob, &decoded)
	if err != nil {
		t.Fatalf("UnmarshalFirst: %v", err)
	}
	if decoded != header {
		t.Errorf("header mismatch: got %+v, want %+v", decoded, header)
	}
	if !bytes.Equal(rest, payload) {
		t.Errorf("rest = %q, want %q", rest, payload)
	}
}

func TestEncoderDecoderStreamRoundtrip(t *testing.T) {
	rows := []sampleRow{
		{Filename: "requests-2.31.0.tar.gz", Origin: "https://pypi.org", Size: 1},
		{Filename: "certifi-2023.7.22.tar.gz", Origin: "https://pypi.org", Size: 2},
		{Filename: "local.tar.gz", Size: 0},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, row := range rows {
		if err := encoder.Encode(row); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range rows {
		var got sampleRow
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode row %d: %v", i, err)
		}
		if got != want {
			t.Errorf("row %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestJSONTagFallback(t *testing.T) {
	// Types with json tags (no cbor tags) should encode/decode
	// correctly through our modes, using json tag names as CBOR
	// map keys.
	original := sampleDocument{Version: 3, Name: "vendor"}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleDocument
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded != original {
		t.Errorf("json-tag roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestOmitemptyRespected(t *testing.T) {
	withOrigin := sampleRow{Filename: "a", Origin: "https://pypi.org", Size: 1}
	withoutOrigin := sampleRow{Filename: "a", Size: 1}

	dataWith, err := Marshal(withOrigin)
	if err != nil {
		t.Fatal(err)
	}
	dataWithout, err := Marshal(withoutOrigin)
	if err != nil {
		t.Fatal(err)
	}

	// The encoding without the origin field should be shorter because
	// the omitted field is not present.
	if len(dataWithout) >= len(dataWith) {
		t.Errorf("omitempty not effective: without=%d bytes, with=%d bytes",
			len(dataWithout), len(dataWith))
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var row sampleRow
	err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &row)
	if err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestByteStringRoundtrip(t *testing.T) {
	// Verify that []byte fields encode as CBOR byte strings (major
	// type 2), not text strings. This matters for carrying raw digest
	// bytes and sealed payloads.
	type envelope struct {
		Payload []byte `cbor:"payload"`
	}

	original := envelope{Payload: []byte{0x1f, 0x8b, 0x08, 0x00}}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded envelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if !bytes.Equal(decoded.Payload, original.Payload) {
		t.Errorf("byte string roundtrip: got %x, want %x", decoded.Payload, original.Payload)
	}
}
