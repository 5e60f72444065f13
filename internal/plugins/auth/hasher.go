package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// argon2id output sizes. Cost parameters come from configuration.
const (
	argonKeyLen  = 32
	argonSaltLen = 16
)

// Argon2Params are the cost parameters for new hashes. The defaults follow
// OWASP recommendations for argon2id: memory=64MB, iterations=3,
// parallelism=4.
type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultArgon2Params returns the production cost parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Memory: 64 * 1024, Iterations: 3, Parallelism: 4}
}

// Hasher creates and verifies password hashes. New hashes are always
// argon2id in PHC string format; bcrypt hashes carried over from the
// previous system still verify.
type Hasher struct {
	params Argon2Params
}

// NewHasher creates a hasher using the given cost parameters.
func NewHasher(params Argon2Params) *Hasher {
	return &Hasher{params: params}
}

// Hash creates an argon2id hash of the given password. The output format
// is: $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
// Parameters are embedded so a cost change never invalidates old hashes.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	p := h.params
	hash := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, argonKeyLen)

	// Encode to the standard PHC string format.
	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism, b64Salt, b64Hash), nil
}

// Verify checks a plaintext password against a stored hash. It is the only
// comparison used for both authentication and history reuse checks.
func (h *Hasher) Verify(password, encodedHash string) bool {
	switch {
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return verifyArgon2id(password, encodedHash)
	case isBcryptHash(encodedHash):
		return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)) == nil
	default:
		return false
	}
}

// verifyArgon2id checks a plaintext password against an argon2id PHC string.
func verifyArgon2id(password, encodedHash string) bool {
	// Parse the encoded hash to extract parameters, salt, and hash.
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism)
	if err != nil || iterations == 0 || parallelism == 0 {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expectedHash) == 0 {
		return false
	}

	// Compute the hash of the provided password with the same parameters.
	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Constant-time comparison to prevent timing attacks.
	return subtle.ConstantTimeCompare(expectedHash, computedHash) == 1
}

// isBcryptHash recognizes the $2a$, $2b$ and $2y$ prefixes.
func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") ||
		strings.HasPrefix(s, "$2b$") ||
		strings.HasPrefix(s, "$2y$")
}
