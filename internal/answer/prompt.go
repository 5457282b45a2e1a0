package answer

import (
	"fmt"
	"strings"

	"github.com/reelchat/reelchat/internal/catalog"
)

// synopsisPlaceholder is used when a candidate has neither a long-form
// nor a short synopsis.
const synopsisPlaceholder = "No synopsis available."

// emptyContextNotice replaces the grounding block when retrieval
// returned nothing; the instruction still directs the model to admit
// the gap rather than invent an answer.
const emptyContextNotice = "No matching movies were found in the catalog for this question."

// GroundingContext renders the retrieved candidates into the text
// block injected into the system instruction: one paragraph per
// candidate with title, year, synopsis and relevance score, in
// retrieval rank order.
//
// The output is a deterministic function of the candidate list; any
// two identical lists produce byte-identical text.
func GroundingContext(candidates []catalog.Candidate) string {
	if len(candidates) == 0 {
		return emptyContextNotice
	}

	paragraphs := make([]string, len(candidates))
	for i, c := range candidates {
		synopsis := c.FullPlot
		if synopsis == "" {
			synopsis = synopsisPlaceholder
		}
		paragraphs[i] = fmt.Sprintf("Title: %s\nYear: %d\nSynopsis: %s\nRelevance score: %.4f",
			c.Title, c.Year, synopsis, c.Score)
	}
	return strings.Join(paragraphs, "\n\n")
}

// systemTemplate is the fixed instruction wrapped around the grounding
// context. %s is the grounding block.
const systemTemplate = `You are a movie expert answering questions about a film catalog.

Answer using ONLY the context below. If the context does not contain
enough information to answer, say so plainly instead of guessing.
Always refer to a movie by its title when you mention it.

Format your answer with markdown: use headings, lists and emphasis
where they help readability.

Conclude every answer with a section titled "Sources" listing each
movie from the context together with its relevance score.

Context:
%s`

// SystemInstruction builds the full system prompt for the generation
// service from the retrieved candidates. Like GroundingContext it is
// deterministic: identical candidate lists yield identical
// instructions.
func SystemInstruction(candidates []catalog.Candidate) string {
	return fmt.Sprintf(systemTemplate, GroundingContext(candidates))
}
