package persona

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Persona captures one character profile from the persona document.
type Persona struct {
	Index            int    `json:"index"`
	DisplayName      string `json:"displayName"`
	Name             string `json:"name,omitempty"`
	Age              Age    `json:"age,omitempty"`
	Department       string `json:"department,omitempty"`
	Cluster          string `json:"Cluster,omitempty"`
	NarrativePersona string `json:"narrative_persona,omitempty"`
}

// displayNameFor returns the name shown in the selector, synthesising one for
// records without a usable name.
func displayNameFor(p Persona, index int) string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return fmt.Sprintf("Unnamed Persona %d", index)
}

// Age accepts both numeric and string ages from the persona document.
type Age string

// UnmarshalJSON implements json.Unmarshaler.
func (a *Age) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Age(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("age must be a number or string: %w", err)
	}
	*a = Age(n.String())
	return nil
}
