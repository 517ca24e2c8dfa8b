package entity

import "time"

// Dataset is the output of one video's capture run: a directory of frame
// images and their sidecars.
type Dataset struct {
	Name       string    `json:"name"`
	Dir        string    `json:"dir"`
	FrameCount int       `json:"frame_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// SkippedItem records a per-frame or per-file failure that did not abort the
// operation it happened in.
type SkippedItem struct {
	Dataset string `json:"dataset,omitempty"`
	Item    string `json:"item"`
	Reason  string `json:"reason"`
	Err     error  `json:"-"`
}

// NewSkippedItem captures err as both the structured reason and the wrapped
// error so callers can still match it with errors.Is.
func NewSkippedItem(dataset, item string, err error) SkippedItem {
	return SkippedItem{Dataset: dataset, Item: item, Reason: err.Error(), Err: err}
}
