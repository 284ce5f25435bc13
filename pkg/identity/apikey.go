package identity

import "golang.org/x/crypto/bcrypt"

// APIKeyEntry maps a stored key hash to the principal a service caller
// acts as. Entries are configured at startup; plaintext keys are never
// stored.
type APIKeyEntry struct {
	Hash      string    `yaml:"hash" json:"hash"`
	Principal Principal `yaml:"principal" json:"principal"`
}

// HashAPIKey produces a bcrypt hash suitable for an APIKeyEntry.
func HashAPIKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifyAPIKey checks a presented key against a stored hash.
func VerifyAPIKey(hash, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
