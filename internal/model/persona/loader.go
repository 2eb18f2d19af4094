package persona

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var (
	ErrSourceNotFound  = errors.New("persona document not found")
	ErrSourceMalformed = errors.New("persona document is malformed")
)

// Load reads the persona document at path. The document must be a JSON list of
// objects; any problem yields no personas at all.
func Load(path string) ([]Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, fmt.Errorf("read persona document %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes a persona document and assigns index and display name to
// every record.
func Parse(data []byte) ([]Persona, error) {
	var items []Persona
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceMalformed, err)
	}
	if items == nil {
		return nil, fmt.Errorf("%w: expected a list of personas", ErrSourceMalformed)
	}

	for i := range items {
		items[i].Index = i
		items[i].DisplayName = displayNameFor(items[i], i)
	}
	return items, nil
}
