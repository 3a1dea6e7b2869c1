package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aibanking/lending-assistant/internal/config"
	"github.com/aibanking/lending-assistant/internal/model"
)

// ragSystemPrompts are the versioned system prompts for the RAG path.
var ragSystemPrompts = map[string]string{
	"v1": `You are an internal staff assistant for the bank's digital-lending product.
Answer questions about lending policies, product features, and processes using ONLY the
documents provided in the DOCUMENTS section and the conversation context. If the documents
do not contain the answer, say so and suggest the staff member contact the product team.
Never invent policy details, figures, or limits. Keep answers concise and professional.`,
}

// eligibilityFormatterPrompt instructs the generator to render an eligibility
// payload in the frozen line-based v1.1 format. The layout is load-bearing:
// the UI parses it.
const eligibilityFormatterPrompt = `You are a formatter for account eligibility results. You will receive a JSON
payload describing accounts and their eligibility. Render it EXACTLY in the following
line-based text format, with no tables, no markdown, and no raw reason codes:

Customer Name: <Name | "Unknown">
Account Number: <Account Number>
Status: <Eligible | Not Eligible | Cannot Confirm>

Reasons
---
1. <Friendly Reason Title> (<Inline Evidence>)
<Meaning sentence(s)>

Next Steps
- <Action 1>
- <Action 2>
---
2. ...
---

Rules:
- Reasons are numbered in the order they appear in the payload; never reorder them.
- Derive the friendly title from the reason meaning, never from the code.
- Evidence appears inline in parentheses after the title.
- One "Next Steps" block per reason, one action per line prefixed with "- ".
- Separate consecutive reasons with a line containing only "---".
- Separate accounts with a line containing exactly:
==================== NEXT ACCOUNT ====================
- If the payload has no reasons for an account, omit the Reasons section for it.
- Use "Unknown" when no customer name is available.`

// PromptComposer merges the versioned system prompt, conversation summary,
// recent history, retrieved context, and the user query into the message list
// handed to the generation provider.
type PromptComposer struct {
	cfg *config.RetrievalConfig
}

// NewPromptComposer creates a composer.
func NewPromptComposer(cfg *config.RetrievalConfig) *PromptComposer {
	return &PromptComposer{cfg: cfg}
}

// SystemPrompt resolves a prompt version, falling back to v1.
func (c *PromptComposer) SystemPrompt(version string) string {
	if prompt, ok := ragSystemPrompts[version]; ok {
		return prompt
	}
	return ragSystemPrompts["v1"]
}

// EligibilityFormatterPrompt returns the frozen v1.1 formatter instruction.
func (c *PromptComposer) EligibilityFormatterPrompt() string {
	return eligibilityFormatterPrompt
}

// Build assembles the RAG message list.
func (c *PromptComposer) Build(summary string, history []model.Message, chunks []model.ScoredChunk, userQuery string) []model.PromptMessage {
	var user strings.Builder

	user.WriteString("PAST CONTEXT (summary):\n")
	user.WriteString(summary)
	user.WriteString("\n\n")

	user.WriteString("RECENT CONVERSATION:\n")
	for _, msg := range history {
		user.WriteString(fmt.Sprintf("%s: %s\n", strings.ToLower(string(msg.Role)), msg.Content))
	}
	user.WriteString("\n")

	user.WriteString("DOCUMENTS:\n")
	docs := make([]string, 0, len(chunks))
	for _, sc := range c.fitToBudget(chunks) {
		docs = append(docs, sc.Chunk.Content)
	}
	user.WriteString(strings.Join(docs, "\n---\n"))
	user.WriteString("\n\n")

	user.WriteString("QUESTION: ")
	user.WriteString(userQuery)

	return []model.PromptMessage{
		{Role: model.RoleSystem, Content: c.SystemPrompt(c.cfg.PromptVersion)},
		{Role: model.RoleUser, Content: user.String()},
	}
}

// BuildEligibility assembles the formatter message list around a serialized
// payload.
func (c *PromptComposer) BuildEligibility(payloadJSON string) []model.PromptMessage {
	return []model.PromptMessage{
		{Role: model.RoleSystem, Content: eligibilityFormatterPrompt},
		{Role: model.RoleUser, Content: payloadJSON},
	}
}

// fitToBudget truncates chunk text once the cumulative character budget is
// exceeded, keeping the closest chunks whole. Original chunk order is
// preserved in the output.
func (c *PromptComposer) fitToBudget(chunks []model.ScoredChunk) []model.ScoredChunk {
	budget := c.cfg.MaxContextChars
	if budget <= 0 {
		return chunks
	}

	// Rank by distance so the closest chunks claim budget first.
	order := make([]int, len(chunks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return chunks[order[a]].Distance < chunks[order[b]].Distance
	})

	allowance := make([]int, len(chunks))
	remaining := budget
	for _, idx := range order {
		length := len(chunks[idx].Chunk.Content)
		if length > remaining {
			length = remaining
		}
		allowance[idx] = length
		remaining -= length
	}

	out := make([]model.ScoredChunk, 0, len(chunks))
	for i, sc := range chunks {
		if allowance[i] <= 0 {
			continue
		}
		if allowance[i] < len(sc.Chunk.Content) {
			sc.Chunk.Content = sc.Chunk.Content[:allowance[i]]
		}
		out = append(out, sc)
	}
	return out
}
