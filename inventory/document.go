package inventory

import (
	"encoding/json"
	"fmt"
	"io"
)

// DecodeDocument reads a canonical JSON document. The whole document is
// decoded before anything is returned, so a failure never yields a partial
// dataset.
func DecodeDocument(r io.Reader) (*Dataset, error) {
	var ds Dataset
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	ds.normalize()
	return &ds, nil
}

// EncodeDocument writes ds as indented JSON.
func EncodeDocument(w io.Writer, ds *Dataset) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ds); err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	return nil
}
