package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// HashContent returns the sha256 hex digest of content. It is the dedup key
// for documents: re-indexing a chunk whose hash is unchanged must not re-call
// the embedding provider.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// DocumentID derives the stable identity of a chunk from its placement
// within a library version. Re-indexing writes to the same id, so a repeated
// run overwrites its previous rows or points instead of accumulating
// duplicates.
func DocumentID(libraryID, versionID uuid.UUID, chunkIndex int) uuid.UUID {
	key := fmt.Sprintf("docdex:document:%s:%s:%d", libraryID, versionID, chunkIndex)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key))
}
