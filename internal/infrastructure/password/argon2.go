// Package password implements the argon2id password hasher.
//
// Hashes are PHC strings: $argon2id$v=19$m=<KiB>,t=<iterations>,p=<lanes>$<salt>$<key>
// with unpadded standard base64, so every parameter needed for verification
// travels with the hash itself.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"github.com/99minutos/starter/internal/core/domain"
)

const (
	algorithmID = "argon2id"

	minMemoryKiB   uint32 = 8 * 1024
	maxMemoryKiB   uint32 = 1024 * 1024
	minTime        uint32 = 1
	maxTime        uint32 = 64
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	maxKeyLength   uint32 = 128
)

// Config holds the cost parameters used for new hashes.
type Config struct {
	MemoryKiB   uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig follows the OWASP argon2id baseline.
func DefaultConfig() Config {
	return Config{
		MemoryKiB:   64 * 1024,
		Time:        3,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes with argon2id and verifies argon2id or legacy bcrypt hashes.
type Hasher struct {
	cfg  Config
	rand io.Reader
}

// NewHasher validates cfg and returns a Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Hasher{cfg: cfg, rand: rand.Reader}, nil
}

func (c Config) validate() error {
	switch {
	case c.MemoryKiB < minMemoryKiB || c.MemoryKiB > maxMemoryKiB:
		return fmt.Errorf("password: memory must be within [%d, %d] KiB", minMemoryKiB, maxMemoryKiB)
	case c.Time < minTime || c.Time > maxTime:
		return fmt.Errorf("password: time must be within [%d, %d]", minTime, maxTime)
	case c.Parallelism < minParallelism:
		return errors.New("password: parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password: salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength || c.KeyLength > maxKeyLength:
		return fmt.Errorf("password: key length must be within [%d, %d]", minKeyLength, maxKeyLength)
	}
	return nil
}

// Hash derives a fresh-salted argon2id hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.cfg.SaltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", fmt.Errorf("%w: generating salt: %v", domain.ErrHashing, err)
	}

	key := argon2.IDKey([]byte(password), salt, h.cfg.Time, h.cfg.MemoryKiB, h.cfg.Parallelism, h.cfg.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.cfg.MemoryKiB, h.cfg.Time, h.cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encodedHash. Malformed or
// unsupported hashes simply do not match.
func (h *Hasher) Verify(password, encodedHash string) bool {
	if isBcrypt(encodedHash) {
		return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)) == nil
	}

	p, err := decodePHC(encodedHash)
	if err != nil {
		return false
	}

	candidate := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key))) //nolint:gosec // key length bounded by decodePHC
	return subtle.ConstantTimeCompare(candidate, p.key) == 1
}

// NeedsRehash reports whether encodedHash was produced with weaker
// parameters than the current configuration, or with another algorithm.
func (h *Hasher) NeedsRehash(encodedHash string) bool {
	p, err := decodePHC(encodedHash)
	if err != nil {
		return true
	}
	return p.memory < h.cfg.MemoryKiB ||
		p.time < h.cfg.Time ||
		p.parallelism < h.cfg.Parallelism ||
		uint32(len(p.key)) < h.cfg.KeyLength //nolint:gosec // bounded
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func decodePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, errors.New("unsupported argon2 version")
	}

	p := &phc{}
	if err := parseParams(parts[3], p); err != nil {
		return nil, err
	}

	var err error
	if p.salt, err = decodeB64(parts[4]); err != nil {
		return nil, errors.New("invalid salt encoding")
	}
	if uint32(len(p.salt)) < minSaltLength { //nolint:gosec // small slice
		return nil, errors.New("invalid salt length")
	}
	if p.key, err = decodeB64(parts[5]); err != nil {
		return nil, errors.New("invalid key encoding")
	}
	if n := uint32(len(p.key)); n < minKeyLength || n > maxKeyLength { //nolint:gosec // small slice
		return nil, errors.New("invalid key length")
	}
	return p, nil
}

func parseParams(s string, p *phc) error {
	pairs := strings.Split(s, ",")
	if len(pairs) != 3 {
		return errors.New("invalid parameter format")
	}
	var seen [3]bool
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return errors.New("invalid parameter entry")
		}
		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || uint32(n) < minMemoryKiB || uint32(n) > maxMemoryKiB {
				return errors.New("invalid memory parameter")
			}
			p.memory, seen[0] = uint32(n), true
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || uint32(n) < minTime || uint32(n) > maxTime {
				return errors.New("invalid time parameter")
			}
			p.time, seen[1] = uint32(n), true
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || uint8(n) < minParallelism {
				return errors.New("invalid parallelism parameter")
			}
			p.parallelism, seen[2] = uint8(n), true
		default:
			return errors.New("unsupported parameter")
		}
	}
	if !seen[0] || !seen[1] || !seen[2] {
		return errors.New("missing parameters")
	}
	return nil
}

// decodeB64 accepts both unpadded (PHC) and padded standard base64.
func decodeB64(s string) ([]byte, error) {
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
