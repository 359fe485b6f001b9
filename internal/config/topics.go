package config

// NSQ topics for the ingestion pipeline.
const (
	// TopicDocumentIngest carries freshly uploaded documents to the
	// ingestion worker (extract -> chunk -> embed -> index).
	TopicDocumentIngest = "document.ingest"
)

// Channel name used by this backend's consumers.
const ChannelBackend = "backend"
