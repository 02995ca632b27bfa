package protocol

// LoadingStatus is the state of the load gate as shown by a loading screen
type LoadingStatus string

const (
	StatusWaiting LoadingStatus = "waiting" // Base load condition not reached yet
	StatusLoading LoadingStatus = "loading" // Loaded, tasks outstanding
	StatusLoaded  LoadingStatus = "loaded"  // Barrier opened
	StatusFailed  LoadingStatus = "failed"  // Barrier opened by an aborting task
)

// SnapshotPayload for loading.snapshot, sent when a page connects
type SnapshotPayload struct {
	Status      LoadingStatus `json:"status"`
	Started     int           `json:"started"`
	Ended       int           `json:"ended"`
	Failed      int           `json:"failed"`
	Outstanding int           `json:"outstanding"`
}

// Snapshot status mapping:
// - no load yet                 → "waiting"
// - loaded, not fired           → "loading"
// - fired                       → "loaded"
// - fired with an abort error   → "failed"

// StatusOf derives the loading status from barrier state
func StatusOf(loaded, fired bool, err error) LoadingStatus {
	switch {
	case fired && err != nil:
		return StatusFailed
	case fired:
		return StatusLoaded
	case loaded:
		return StatusLoading
	default:
		return StatusWaiting
	}
}
