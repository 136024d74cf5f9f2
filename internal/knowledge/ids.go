package knowledge

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// RecordID derives the stable identifier of the document at position index
// with the given text: "doc_<index>_<xxh64 of the UTF-8 text as 16 hex digits>".
// Re-ingesting the same text at the same position yields the same id.
func RecordID(text string, index int) string {
	return fmt.Sprintf("doc_%d_%016x", index, xxhash.Sum64String(text))
}
