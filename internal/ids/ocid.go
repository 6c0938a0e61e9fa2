package ids

import (
	"crypto/rand"
	"strings"
)

// Ocid is a 10-character opaque, case-sensitive user-facing account
// identifier, distinct from the numeric UserId used internally. Collisions
// are handled by the caller re-rolling and checking uniqueness against the
// user repository.
type Ocid string

const ocidAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
const ocidLength = 10

// NewOcid generates a random 10-character Ocid. Callers are responsible for
// re-rolling on a unique-constraint violation at the storage layer.
func NewOcid() (Ocid, error) {
	buf := make([]byte, ocidLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(ocidLength)
	for _, c := range buf {
		b.WriteByte(ocidAlphabet[int(c)%len(ocidAlphabet)])
	}
	return Ocid(b.String()), nil
}

func (o Ocid) String() string { return string(o) }
