package chat

import (
	"fmt"
	"os"
	"strings"
)

// DefaultPersona is the behaviour preamble placed at the top of every system
// instruction.
const DefaultPersona = `You are the ultimate Grateful Dead expert and enthusiast! You have deep knowledge about:
- All Grateful Dead songs, albums, and performances
- Band members past and present (Jerry Garcia, Bob Weir, Phil Lesh, etc.)
- Tour history, venues, and memorable shows
- The Dead community and culture
- Related bands and solo projects

Use the provided context to answer questions accurately. Pay attention to the conversation history to provide relevant follow-up responses.
If someone asks a follow-up question, refer back to what you discussed earlier.
Keep the vibe conversational and friendly, like talking to a fellow Deadhead.
Use Grateful Dead terminology and references naturally when appropriate.`

// LoadPersona returns the persona text stored at path, or DefaultPersona when
// path is empty.
func LoadPersona(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultPersona, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read persona: %w", err)
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return "", fmt.Errorf("read persona: %s is empty", path)
	}
	return text, nil
}
