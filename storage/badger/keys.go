package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/eventscout/core"
	"github.com/poiesic/eventscout/storage"
)

const (
	collectionInfoPrefix = "idxcol"
	collectionDocPrefix  = "idxdoc"
)

// validateCollectionName rejects names that could make one collection's key
// prefix a prefix of another's.
func validateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", storage.ErrInvalidCollectionName)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return fmt.Errorf("%w: %q", storage.ErrInvalidCollectionName, name)
		}
	}
	return nil
}

// makeCollectionKey generates the key holding a collection's info.
func makeCollectionKey(name string) []byte {
	return []byte(fmt.Sprintf("%s:%s", collectionInfoPrefix, name))
}

// makeDocPrefix generates the prefix shared by every document in a collection.
// Format: prefix:name:
func makeDocPrefix(name string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", collectionDocPrefix, name))
}

// makeDocKey generates the key for a document.
// Format: prefix:name:id
func makeDocKey(name string, id core.ID) []byte {
	prefixBytes := makeDocPrefix(name)
	buf := make([]byte, len(prefixBytes)+8)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}
