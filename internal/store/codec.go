package store

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EncodeDocument serializes a document for storage.
func EncodeDocument(doc Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}

// DecodeDocument parses a stored document. Every JSON number becomes a float64, which keeps index
// keys and comparisons consistent.
func DecodeDocument(value []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(value, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

// tryUnmarshal decodes a stored value, returning nil when it is not a JSON object.
func tryUnmarshal(value []byte) Document {
	doc, err := DecodeDocument(value)
	if err != nil {
		return nil
	}
	return doc
}
