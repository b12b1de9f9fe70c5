package resource

import "fmt"

// Metadata is an immutable description of a resource, persisted as a YAML
// sidecar next to the resource file and surfaced to retrievers/pipelines
// as document metadata.
type Metadata struct {
	displayName string
	extra       map[string]string
}

// NewMetadata builds a Metadata, stringifying every value in extra (nil
// values are dropped, matching the original collectors' "skip None"
// behaviour).
func NewMetadata(displayName string, extra map[string]interface{}) (*Metadata, error) {
	if displayName == "" {
		return nil, fmt.Errorf("display_name must be a non-empty string")
	}
	sanitized := make(map[string]string, len(extra))
	for k, v := range extra {
		if v == nil {
			continue
		}
		sanitized[k] = fmt.Sprint(v)
	}
	return &Metadata{displayName: displayName, extra: sanitized}, nil
}

// DisplayName returns the human-readable name for this resource.
func (m *Metadata) DisplayName() string {
	return m.displayName
}

// AsMap returns a flat string map representation, suitable for writing to a
// YAML sidecar or attaching to a vector store document.
func (m *Metadata) AsMap() map[string]string {
	out := make(map[string]string, len(m.extra)+1)
	out["display_name"] = m.displayName
	for k, v := range m.extra {
		out[k] = v
	}
	return out
}

// Get returns an extra metadata value and whether it was present.
func (m *Metadata) Get(key string) (string, bool) {
	v, ok := m.extra[key]
	return v, ok
}
