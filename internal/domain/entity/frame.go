package entity

import (
	"fmt"
	"path"
	"strings"
)

// Annotation is one labeled bounding box on a frame.
type Annotation struct {
	Label       string      `json:"label"`
	Coordinates Coordinates `json:"coordinates"`
}

// FrameRecord is the sidecar persisted next to every frame image.
type FrameRecord struct {
	ImageName   string       `json:"imageName"`
	ImageURL    string       `json:"imageURL"`
	Annotations []Annotation `json:"annotations"`
}

// ManifestEntry is one element of the export manifest.
type ManifestEntry struct {
	Image       string       `json:"image"`
	Annotations []Annotation `json:"annotations"`
}

// Relabel overwrites every annotation label in place.
func (r *FrameRecord) Relabel(label string) {
	for i := range r.Annotations {
		r.Annotations[i].Label = label
	}
}

// ManifestEntry projects the record onto the export manifest schema.
func (r FrameRecord) ManifestEntry() ManifestEntry {
	annotations := r.Annotations
	if annotations == nil {
		annotations = []Annotation{}
	}
	return ManifestEntry{Image: r.ImageName, Annotations: annotations}
}

// CheckImageName accepts only a plain image file name. Names carrying a
// directory part would address frames outside their dataset.
func CheckImageName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
	case strings.ContainsAny(name, `/\`):
	case strings.EqualFold(path.Ext(name), ".json"):
	default:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidImageName, name)
}
