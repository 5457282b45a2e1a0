package catalog

import (
	"encoding/json"
	"fmt"
	"io"
)

// DecodeMovies reads a JSON array of movies for ingestion. Entries
// without an ID or title are rejected so the backfill fails loudly
// instead of indexing unidentifiable documents.
func DecodeMovies(r io.Reader) ([]Movie, error) {
	var movies []Movie
	dec := json.NewDecoder(r)
	if err := dec.Decode(&movies); err != nil {
		return nil, fmt.Errorf("decoding movie list: %w", err)
	}

	for i, m := range movies {
		if m.ID == "" {
			return nil, fmt.Errorf("movie at index %d has no _id", i)
		}
		if m.Title == "" {
			return nil, fmt.Errorf("movie %q has no title", m.ID)
		}
	}
	return movies, nil
}
