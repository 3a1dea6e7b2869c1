package model

// VectorChunk is one indexed document fragment returned by retrieval. The
// EmbeddingSpaceTag names the space the chunk's vector lives in and must match
// the hosting collection's tag: mixing vectors across spaces is always a bug.
type VectorChunk struct {
	ChunkID           string `json:"chunk_id"`
	SourceDoc         string `json:"source_doc"`
	Page              int    `json:"page,omitempty"`
	Content           string `json:"content"`
	EmbeddingSpaceTag string `json:"embedding_space_tag"`
}

// ScoredChunk pairs a retrieved chunk with its distance to the query. Lower
// distance means more similar.
type ScoredChunk struct {
	Chunk    VectorChunk `json:"chunk"`
	Distance float64     `json:"distance"`
}

// GenerationUsage is the token accounting reported by a generation provider.
type GenerationUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// GenerationResult is the outcome of one generate call.
type GenerationResult struct {
	Text      string            `json:"text"`
	Usage     GenerationUsage   `json:"usage"`
	LatencyMS float64           `json:"latency_ms"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// PromptMessage is one entry of a composed prompt.
type PromptMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// ChatRequest is one user turn entering the orchestrator.
type ChatRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
	RequestID      string `json:"request_id,omitempty"`
}

// SourceRef identifies one document backing a RAG answer.
type SourceRef struct {
	SourceDoc string  `json:"source_doc"`
	Page      int     `json:"page,omitempty"`
	Distance  float64 `json:"distance"`
}

// ChatResponse is the orchestrator's success exit.
type ChatResponse struct {
	Response          string            `json:"response"`
	Sources           []SourceRef       `json:"sources,omitempty"`
	IsEligibilityFlow bool              `json:"is_eligibility_flow"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// ErrorBody is the orchestrator's failure exit. The orchestrator never raises;
// every failure becomes one of these with the request ID visible for support.
type ErrorBody struct {
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id"`
}

// ErrorDetail carries the kind and a user-presentable message.
type ErrorDetail struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}
