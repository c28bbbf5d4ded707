package domain

// Signal is a discrete call event. Created by an external ingestion
// collaborator and read-only to the replay core.
type Signal struct {
	ID             string   // stable call identifier
	Caller         string   // who issued the call
	AssetID        string   // asset the call refers to
	CreatedAt      int64    // call time (sec)
	ReferencePrice *float64 // price quoted with the call, if any
}
