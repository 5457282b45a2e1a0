package answer

import (
	"strings"
	"testing"

	"github.com/reelchat/reelchat/internal/catalog"
)

func sampleCandidates() []catalog.Candidate {
	return []catalog.Candidate{
		{ID: "m1", Title: "Heat", Year: 1995, FullPlot: "A crew of thieves.", Score: 0.9231},
		{ID: "m2", Title: "Ronin", Year: 1998, FullPlot: "Mercenaries chase a case.", Score: 0.8517},
	}
}

func TestGroundingContext(t *testing.T) {
	got := GroundingContext(sampleCandidates())

	wantFirst := "Title: Heat\nYear: 1995\nSynopsis: A crew of thieves.\nRelevance score: 0.9231"
	if !strings.HasPrefix(got, wantFirst) {
		t.Errorf("GroundingContext() first paragraph = %q, want prefix %q", got, wantFirst)
	}
	if !strings.Contains(got, "\n\nTitle: Ronin\n") {
		t.Errorf("GroundingContext() missing second paragraph separator:\n%s", got)
	}
}

func TestGroundingContext_Deterministic(t *testing.T) {
	a := GroundingContext(sampleCandidates())
	b := GroundingContext(sampleCandidates())
	if a != b {
		t.Errorf("GroundingContext() not deterministic:\n%q\nvs\n%q", a, b)
	}
}

func TestGroundingContext_MissingSynopsis(t *testing.T) {
	got := GroundingContext([]catalog.Candidate{{ID: "m3", Title: "Lost Reel", Year: 1931}})
	if !strings.Contains(got, "Synopsis: "+synopsisPlaceholder) {
		t.Errorf("GroundingContext() = %q, want placeholder synopsis", got)
	}
}

func TestGroundingContext_Empty(t *testing.T) {
	if got := GroundingContext(nil); got != emptyContextNotice {
		t.Errorf("GroundingContext(nil) = %q, want %q", got, emptyContextNotice)
	}
}

func TestSystemInstruction(t *testing.T) {
	got := SystemInstruction(sampleCandidates())

	if !strings.Contains(got, "movie expert") {
		t.Error("SystemInstruction() missing role preamble")
	}
	if !strings.Contains(got, GroundingContext(sampleCandidates())) {
		t.Error("SystemInstruction() does not embed the grounding context")
	}
	if !strings.Contains(got, `"Sources"`) {
		t.Error("SystemInstruction() missing sources section directive")
	}
}
