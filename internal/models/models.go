package models

// Role tags a chat message with its speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single turn in a conversation.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Document is an uploaded file tracked by the catalog. Summary and
// SegmentIDs are filled in after chunking and indexing.
type Document struct {
	ID          string   `json:"id"`
	OwnerID     string   `json:"owner_id"`
	DisplayName string   `json:"display_name"`
	Path        string   `json:"-"`
	IsActive    bool     `json:"is_active"`
	Summary     string   `json:"summary"`
	SegmentIDs  []string `json:"-"`
}

// Segment is one retrieval unit derived from a document. A segment
// belongs to exactly one document and its embedding is computed once,
// at index build time.
type Segment struct {
	ID         string
	DocumentID string
	Position   int
	Content    string
	Embedding  []float32
	Metadata   map[string]interface{}
}

// MetadataKeyDocumentID and friends are the reserved metadata keys a
// segment carries. They are excluded from anything shown to the
// language model and from embedding input.
const (
	MetadataKeyDocumentID = "document_id"
	MetadataKeyOwnerID    = "owner_id"
	MetadataKeyIsActive   = "is_active"
)

// ScoredSegment is a segment returned from a similarity search.
type ScoredSegment struct {
	Segment Segment
	Score   float64
}

// Source attributes a piece of a synthesized answer to a segment.
type Source struct {
	DocumentID string `json:"document_id"`
	SegmentID  string `json:"segment_id"`
	Position   int    `json:"position"`
}

// ToolResult is the synthesized output of one tool invocation.
type ToolResult struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}
