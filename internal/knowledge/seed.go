package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SeedDocuments returns the built-in Grateful Dead corpus used to populate an
// empty knowledge base.
func SeedDocuments() []Document {
	return []Document{
		{
			"content":  "Jerry Garcia was the lead guitarist and primary songwriter for the Grateful Dead. Born Jerome John Garcia on August 1, 1942, in San Francisco, he was known for his distinctive guitar playing style and improvisational skills. Jerry played a variety of guitars throughout his career, most famously 'Tiger' and 'Wolf' custom guitars built by Doug Irwin.",
			"category": "band_members",
			"person":   "Jerry Garcia",
			"type":     "biography",
		},
		{
			"content":  "Dark Star is one of the Grateful Dead's most famous and experimental songs. Written by Jerry Garcia and Robert Hunter, it became a vehicle for extended improvisation during live performances. The song was first performed on October 29, 1966, and appeared on the Live/Dead album in 1969.",
			"category": "songs",
			"song":     "Dark Star",
			"writers":  "Garcia/Hunter",
			"type":     "song_info",
		},
		{
			"content":  "The Grateful Dead's performance at Barton Hall, Cornell University on May 8, 1977, is considered one of their greatest shows ever. The second set featured an incredible Scarlet Begonias > Fire on the Mountain, and the show has been called 'the best Dead show ever' by many fans.",
			"category": "shows",
			"venue":    "Barton Hall",
			"date":     "1977-05-08",
			"type":     "show_review",
		},
		{
			"content":  "American Beauty, released in 1970, is often considered the Grateful Dead's masterpiece studio album. It includes classics like 'Ripple,' 'Friend of the Devil,' 'Sugar Magnolia,' and 'Truckin'.' The album showcased the band's songwriting partnership between Jerry Garcia and Robert Hunter.",
			"category": "albums",
			"album":    "American Beauty",
			"year":     "1970",
			"type":     "album_info",
		},
		{
			"content":  "Deadheads are the devoted fans of the Grateful Dead, known for following the band on tour and creating a unique community culture. The term encompasses the culture of peace, love, and music that surrounded the band. Many Deadheads would travel from show to show, creating a traveling community.",
			"category": "culture",
			"topic":    "Deadheads",
			"type":     "culture_info",
		},
		{
			"content":  "The Grateful Dead performed over 2,300 concerts during their 30-year career from 1965 to 1995. They were known for never playing the same setlist twice, making each show unique.",
			"category": "statistics",
			"type":     "general_info",
		},
		{
			"content":  "Robert Hunter was the primary lyricist for the Grateful Dead, writing words to most of Jerry Garcia's compositions. His poetic, mystical lyrics became a defining element of the Dead's music.",
			"category": "band_members",
			"person":   "Robert Hunter",
			"type":     "biography",
		},
		{
			"content":  "The Grateful Dead's improvisational style was influenced by jazz, bluegrass, country, folk, blues, and psychedelic rock. Their jams could extend songs from 3 minutes to over 30 minutes.",
			"category": "musical_style",
			"type":     "analysis",
		},
	}
}

// LoadDocuments reads documents from a .yaml, .yml or .json file. The file
// holds either a list of documents or an object with a "documents" list.
func LoadDocuments(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}

	var unmarshal func([]byte, any) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	case ".json":
		unmarshal = func(b []byte, v any) error {
			dec := json.NewDecoder(bytes.NewReader(b))
			dec.UseNumber()
			return dec.Decode(v)
		}
	default:
		return nil, fmt.Errorf("read documents: unsupported extension %q (expected .yaml, .yml or .json)", filepath.Ext(path))
	}

	var list []Document
	if err := unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Documents []Document `json:"documents" yaml:"documents"`
	}
	if err := unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse documents %s: %w", path, err)
	}
	return wrapped.Documents, nil
}

// SeedIfEmpty ingests docs when the store holds no records. It reports
// whether seeding happened.
func SeedIfEmpty(ctx context.Context, store Store, ingestor *Ingestor, docs []Document) (bool, error) {
	n, err := store.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count knowledge base: %w", err)
	}
	if n > 0 || len(docs) == 0 {
		return false, nil
	}
	if _, err := ingestor.Ingest(ctx, docs); err != nil {
		return false, err
	}
	return true, nil
}
