package models

// ItemState is the lifecycle state of one item inside a run.
// Transitions: Pending -> Navigating -> Loading -> Extracting ->
// {Completed | Failed}. Failed is terminal for the run; there is no retry.
type ItemState string

const (
	ItemPending    ItemState = "pending"
	ItemNavigating ItemState = "navigating"
	ItemLoading    ItemState = "loading"
	ItemExtracting ItemState = "extracting"
	ItemCompleted  ItemState = "completed"
	ItemFailed     ItemState = "failed"
)

// ItemProgress is the externally visible progress of one item.
type ItemProgress struct {
	Item    string    `json:"item"`
	State   ItemState `json:"state"`
	Records int       `json:"records"`
}

// RunSnapshot is a point-in-time view of a run, served by the status API.
type RunSnapshot struct {
	ID        string         `json:"id"`
	Status    string         `json:"status"` // "running", "completed", "partial", "failed"
	Total     int            `json:"total"`
	Completed int            `json:"completed"`
	Failed    int            `json:"failed"`
	Records   int            `json:"records"`
	Items     []ItemProgress `json:"items"`
}
