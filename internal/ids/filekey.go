package ids

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// FileKey identifies stored file content: a 20-character random prefix
// followed by the lowercase hex SHA3-256 digest of the content. The digest
// suffix is what makes content dedup-able (see ContentDigest); the prefix
// only keeps storage paths unguessable and differs on every call to
// NewFileKeyFromDigest, so two keys for identical content never match
// byte-for-byte.
type FileKey string

const fileKeyPrefixLen = 20

// ContentDigestHex returns the lowercase hex SHA3-256 digest of data, the
// same digest that forms the dedup-relevant suffix of a FileKey.
func ContentDigestHex(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewFileKeyFromDigest builds a key from an already-computed content
// digest, so a caller that already hashed the content while verifying a
// declared upload hash doesn't have to hash it again.
func NewFileKeyFromDigest(digest string) (FileKey, error) {
	prefix := make([]byte, fileKeyPrefixLen/2)
	if _, err := rand.Read(prefix); err != nil {
		return "", err
	}
	return FileKey(hex.EncodeToString(prefix) + digest), nil
}

// ContentDigest returns the SHA3-256 portion of the key, the part shared by
// every FileKey ever minted for the same content regardless of uploader.
func (k FileKey) ContentDigest() string {
	s := string(k)
	if len(s) <= fileKeyPrefixLen {
		return ""
	}
	return s[fileKeyPrefixLen:]
}

func (k FileKey) String() string { return string(k) }

func (k FileKey) IsValid() bool {
	return len(k) > fileKeyPrefixLen && !strings.ContainsAny(string(k), "/\\")
}
