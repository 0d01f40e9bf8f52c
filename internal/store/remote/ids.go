package remote

import (
	"crypto/rand"
	"math/big"
)

const (
	idLength   = 20
	idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// NewDocumentID returns a random 20-character alphanumeric document id.
func NewDocumentID() string {
	b := make([]byte, idLength)
	limit := big.NewInt(int64(len(idAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			panic("remote: crypto/rand failed: " + err.Error())
		}
		b[i] = idAlphabet[n.Int64()]
	}
	return string(b)
}
