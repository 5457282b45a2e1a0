// Package message models inbound conversation turns and their
// normalization into plain text.
//
// Clients send turns in one of two encodings: a flat content string,
// or an ordered list of typed parts. Both are reduced to a single
// effective text. Normalization runs twice per request with different
// strictness: a strict pass on the query turn (the last turn), and a
// tolerant pass on the rest of the history.
package message

import (
	"errors"
	"strings"
)

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Sentinel errors for turn normalization.
var (
	// ErrInvalidFormat indicates a turn carries neither a flat content
	// string nor a segmented parts list.
	ErrInvalidFormat = errors.New("invalid message format")

	// ErrEmptyQuery indicates the query turn's text is empty or
	// whitespace-only after normalization.
	ErrEmptyQuery = errors.New("empty message content")
)

// Part is one segment of a segmented turn. Segments whose Type is not
// "text" are opaque to this service and skipped during normalization.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// PartTypeText marks a part carrying answerable text.
const PartTypeText = "text"

// Turn is one message in a conversation.
//
// Content is a pointer so that an explicitly empty string can be told
// apart from an absent field: a present empty content is still the
// effective content for history projection, but is rejected as a query.
type Turn struct {
	Role    string  `json:"role"`
	Content *string `json:"content,omitempty"`
	Parts   []Part  `json:"parts,omitempty"`
}

// Request is the inbound conversation payload. The last turn is the
// active query. Extra top-level fields (client message IDs, trigger
// markers) are ignored by the decoder.
type Request struct {
	Messages []Turn `json:"messages"`
}

// Text returns the turn's effective text using the strict rules for
// the query turn:
//   - a present content field wins, even when empty, regardless of a
//     coexisting parts list;
//   - otherwise a parts list is reduced to the space-joined non-empty
//     text parts, in order (non-text parts are skipped, not an error);
//   - otherwise the turn is malformed.
func (t Turn) Text() (string, error) {
	if t.Content != nil {
		return *t.Content, nil
	}
	if t.Parts != nil {
		return joinTextParts(t.Parts), nil
	}
	return "", ErrInvalidFormat
}

// textLenient is the tolerant variant used for history projection:
// a turn with neither encoding maps to the empty string.
func (t Turn) textLenient() string {
	text, err := t.Text()
	if err != nil {
		return ""
	}
	return text
}

func joinTextParts(parts []Part) string {
	var texts []string
	for _, p := range parts {
		if p.Type == PartTypeText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}

// ExtractQuery derives the search query from the last turn of the
// conversation. It propagates ErrInvalidFormat from strict
// normalization and returns ErrEmptyQuery when the trimmed text is
// empty. An empty conversation is malformed.
func ExtractQuery(turns []Turn) (string, error) {
	if len(turns) == 0 {
		return "", ErrInvalidFormat
	}

	text, err := turns[len(turns)-1].Text()
	if err != nil {
		return "", err
	}

	query := strings.TrimSpace(text)
	if query == "" {
		return "", ErrEmptyQuery
	}
	return query, nil
}

// Projected is one (role, content) pair ready for the generation
// service.
type Projected struct {
	Role    string
	Content string
}

// Project maps the conversation into the role/content pairs the
// generation service expects. System turns are dropped entirely: the
// system instruction is supplied by the grounding prompt, never taken
// from client input. All other turns use tolerant normalization, so
// empty or malformed history turns become empty strings rather than
// errors.
func Project(turns []Turn) []Projected {
	projected := make([]Projected, 0, len(turns))
	for _, t := range turns {
		if t.Role == RoleSystem {
			continue
		}
		projected = append(projected, Projected{
			Role:    t.Role,
			Content: t.textLenient(),
		})
	}
	return projected
}
