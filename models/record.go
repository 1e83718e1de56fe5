package models

import "time"

// Record is one structured entry extracted from a single container element.
// Records are immutable once created and are appended to the result set in
// extraction order.
type Record struct {
	// Seq is the 1-based sequence number within its item, in DOM order.
	// It restarts at 1 for every item.
	Seq int `json:"seq"`

	// Item is the source item URL this record was extracted from.
	Item string `json:"item"`

	// Author is the identity text. Defaults to "unknown user" when no
	// identity field could be resolved.
	Author string `json:"author"`

	// Content is the record body text.
	Content string `json:"content"`

	// Likes is the normalized metric value. Always >= 0.
	Likes int `json:"likes"`

	// ExtractedAt is the wall-clock extraction timestamp.
	ExtractedAt time.Time `json:"extracted_at"`
}

// Failure records one item that could not be harvested, with the error
// code that ended it. Items collapse to exactly one Failure each.
type Failure struct {
	Item    string `json:"item"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
