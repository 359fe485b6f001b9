package worker

// IngestMessage is the NSQ payload published on document upload.
type IngestMessage struct {
	DocumentID    string `json:"document_id"`
	UserID        string `json:"user_id"`
	AssetID       string `json:"asset_id"`
	FilePath      string `json:"file_path"`
	DocType       string `json:"doc_type"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Chunk is one embedded slice of a document, ready for indexing.
type Chunk struct {
	Content    string
	UserID     string
	DocumentID string
	DocType    string
	AssetID    string
	ChunkIndex int
	Vector     []float32
}
