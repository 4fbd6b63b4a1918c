package kg

// DocumentStatusUpdate is the payload sent to the document lifecycle
// collaborator after a save operation succeeds or fails. Counts reflect only
// the primary store; index lag is invisible to the caller.
type DocumentStatusUpdate struct {
	DocumentID    string `json:"document_id"`
	Status        string `json:"status"`
	Detail        string `json:"detail,omitempty"`
	EntityCount   int    `json:"entity_count,omitempty"`
	RelationCount int    `json:"relation_count,omitempty"`
}

const (
	DocumentStatusGraphSaved  = "graph_saved"
	DocumentStatusGraphFailed = "graph_failed"
)
