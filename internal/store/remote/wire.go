package remote

import "github.com/pos-system/possync/internal/schema"

// Wire types of the document server protocol.
//
//	PUT    /v1/collections/{collection}/docs/{id}   body: SetRequest
//	DELETE /v1/collections/{collection}/docs/{id}
//	GET    /v1/collections/{collection}/docs        resp: ListResponse
//	GET    /v1/collections/{collection}/listen      websocket of FeedMessage
//	GET    /health

// SetRequest is the body of a document write.
type SetRequest struct {
	Fields schema.Document `json:"fields"`
}

// DocumentJSON is a stored document.
type DocumentJSON struct {
	ID         string          `json:"id"`
	Fields     schema.Document `json:"fields"`
	UpdateTime int64           `json:"updateTime,omitempty"`
}

// ListResponse is the body of a collection fetch.
type ListResponse struct {
	Documents []DocumentJSON `json:"documents"`
}

// ChangeType is the kind of change in a feed message.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// FeedChange is one document change on the feed.
type FeedChange struct {
	Type   ChangeType      `json:"type"`
	ID     string          `json:"id"`
	Fields schema.Document `json:"fields,omitempty"`
}

// Feed message types.
const (
	FeedSnapshot = "snapshot"
	FeedChanges  = "changes"
)

// FeedMessage is one websocket frame on the change feed. A snapshot carries
// every document as added.
type FeedMessage struct {
	Type       string       `json:"type"`
	Collection string       `json:"collection"`
	Changes    []FeedChange `json:"changes"`
	Timestamp  int64        `json:"timestamp"`
}
