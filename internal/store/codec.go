package store

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ratio1/r1setup/internal/inventory"
	"github.com/ratio1/r1setup/pkg/api"
)

// Encode serializes doc into the inventory file format. Output is
// deterministic for a given document.
func Encode(doc *inventory.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	inv := doc.ToAPI()
	if err := enc.Encode(&inv); err != nil {
		return nil, fmt.Errorf("encode inventory: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode inventory: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses inventory file content.
func Decode(content []byte) (*inventory.Document, error) {
	var inv api.Inventory
	if err := yaml.Unmarshal(content, &inv); err != nil {
		return nil, fmt.Errorf("parse inventory: %w", err)
	}
	return inventory.FromAPI(inv)
}
