package message

import (
	"encoding/json"
	"errors"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestTurnText(t *testing.T) {
	tests := []struct {
		name    string
		turn    Turn
		want    string
		wantErr error
	}{
		{
			name: "flat content",
			turn: Turn{Role: RoleUser, Content: strPtr("what should I watch tonight?")},
			want: "what should I watch tonight?",
		},
		{
			name: "flat content wins over parts",
			turn: Turn{
				Role:    RoleUser,
				Content: strPtr("flat"),
				Parts:   []Part{{Type: PartTypeText, Text: "segmented"}},
			},
			want: "flat",
		},
		{
			name: "empty flat content is returned verbatim",
			turn: Turn{Role: RoleUser, Content: strPtr("")},
			want: "",
		},
		{
			name: "text parts joined with single space",
			turn: Turn{Role: RoleUser, Parts: []Part{
				{Type: PartTypeText, Text: "Hello"},
				{Type: PartTypeText, Text: "World"},
				{Type: "other"},
			}},
			want: "Hello World",
		},
		{
			name: "empty text parts skipped",
			turn: Turn{Role: RoleUser, Parts: []Part{
				{Type: PartTypeText, Text: ""},
				{Type: PartTypeText, Text: "only"},
			}},
			want: "only",
		},
		{
			name: "parts with no text segments",
			turn: Turn{Role: RoleUser, Parts: []Part{{Type: "image"}}},
			want: "",
		},
		{
			name:    "neither encoding",
			turn:    Turn{Role: RoleUser},
			wantErr: ErrInvalidFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.turn.Text()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Text() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTurnText_JSONNullContent(t *testing.T) {
	// A JSON null content must behave like an absent field.
	var turn Turn
	if err := json.Unmarshal([]byte(`{"role":"user","content":null,"parts":[{"type":"text","text":"hi"}]}`), &turn); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, err := turn.Text()
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if got != "hi" {
		t.Errorf("Text() = %q, want %q", got, "hi")
	}
}

func TestExtractQuery(t *testing.T) {
	tests := []struct {
		name    string
		turns   []Turn
		want    string
		wantErr error
	}{
		{
			name:  "trims whitespace",
			turns: []Turn{{Role: RoleUser, Content: strPtr("  best heist movies  ")}},
			want:  "best heist movies",
		},
		{
			name: "uses last turn only",
			turns: []Turn{
				{Role: RoleUser, Content: strPtr("first")},
				{Role: RoleAssistant, Content: strPtr("reply")},
				{Role: RoleUser, Content: strPtr("second")},
			},
			want: "second",
		},
		{
			name:    "empty content",
			turns:   []Turn{{Role: RoleUser, Content: strPtr("")}},
			wantErr: ErrEmptyQuery,
		},
		{
			name:    "whitespace-only content",
			turns:   []Turn{{Role: RoleUser, Content: strPtr("   \n\t")}},
			wantErr: ErrEmptyQuery,
		},
		{
			name:    "malformed turn",
			turns:   []Turn{{Role: RoleUser}},
			wantErr: ErrInvalidFormat,
		},
		{
			name:    "no turns",
			turns:   nil,
			wantErr: ErrInvalidFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractQuery(tt.turns)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ExtractQuery() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractQuery_DistinctErrors(t *testing.T) {
	// Callers must be able to tell the two failure modes apart.
	_, emptyErr := ExtractQuery([]Turn{{Role: RoleUser, Content: strPtr(" ")}})
	if errors.Is(emptyErr, ErrInvalidFormat) {
		t.Error("empty query must not match ErrInvalidFormat")
	}

	_, formatErr := ExtractQuery([]Turn{{Role: RoleUser}})
	if errors.Is(formatErr, ErrEmptyQuery) {
		t.Error("malformed turn must not match ErrEmptyQuery")
	}
}

func TestProject(t *testing.T) {
	turns := []Turn{
		{Role: RoleSystem, Content: strPtr("you are a pirate")},
		{Role: RoleUser, Content: strPtr("ahoy")},
		{Role: RoleAssistant, Parts: []Part{{Type: PartTypeText, Text: "ahoy back"}}},
		{Role: RoleUser}, // malformed: tolerated as empty in history
	}

	got := Project(turns)

	want := []Projected{
		{Role: RoleUser, Content: "ahoy"},
		{Role: RoleAssistant, Content: "ahoy back"},
		{Role: RoleUser, Content: ""},
	}

	if len(got) != len(want) {
		t.Fatalf("Project() returned %d pairs, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Project()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestProject_NeverEmitsSystem(t *testing.T) {
	turns := []Turn{
		{Role: RoleSystem, Content: strPtr("injected instruction")},
		{Role: RoleSystem, Parts: []Part{{Type: PartTypeText, Text: "another"}}},
	}

	if got := Project(turns); len(got) != 0 {
		t.Errorf("Project() = %+v, want no pairs for system-only input", got)
	}
}
