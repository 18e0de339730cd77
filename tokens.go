package identity

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/goliatone/go-errors"
)

// RecoveryTokenBytes is the entropy carried by password reset and email
// verification tokens.
const RecoveryTokenBytes = 32

// GenerateRecoveryToken produces an opaque single-use token for account
// recovery flows. Tokens are URL safe so they can travel in email links
// without further escaping.
func GenerateRecoveryToken() (string, error) {
	buf := make([]byte, RecoveryTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate recovery token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
