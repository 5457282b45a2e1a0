package catalog

// Movie is one catalog entry as ingested. Plot is the short synopsis,
// FullPlot the long-form one; either may be empty.
type Movie struct {
	ID       string `json:"_id"`
	Title    string `json:"title"`
	Year     int    `json:"year"`
	Plot     string `json:"plot,omitempty"`
	FullPlot string `json:"fullplot,omitempty"`
	Poster   string `json:"poster,omitempty"`
}

// Candidate is one retrieved movie together with its relevance score.
//
// FullPlot already carries the long-form/short synopsis fallback: it is
// the fullplot column when non-empty, else the plot column. Score is
// cosine-derived and lies in [0,1]; candidates are ordered by the
// index's own ranking (descending score) and are never re-ranked
// locally.
//
// The JSON field names are the wire contract of the sources side
// channel.
type Candidate struct {
	ID       string  `json:"_id"`
	Title    string  `json:"title"`
	FullPlot string  `json:"fullplot"`
	Year     int     `json:"year"`
	Poster   string  `json:"poster,omitempty"`
	Score    float64 `json:"score"`
}

// EmbeddingText returns the text a movie is embedded under: the
// long-form plot when available, else the short one, else the title.
func (m Movie) EmbeddingText() string {
	if m.FullPlot != "" {
		return m.FullPlot
	}
	if m.Plot != "" {
		return m.Plot
	}
	return m.Title
}
