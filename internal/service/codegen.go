package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/openclaw/pairing-relay/internal/config"
	apperrors "github.com/openclaw/pairing-relay/internal/errors"
)

// maxCodeDraws bounds collision re-draws. With 32^8 codes a second draw is
// already unlikely; running out means the registry or the entropy source is
// broken.
const maxCodeDraws = 16

var ErrCodeSpaceExhausted = errors.New("could not mint an unused pairing code")

// CodeGenerator mints pairing codes from a cryptographically secure source.
// Characters are chosen by rejection sampling so every symbol of the
// alphabet is equally likely.
type CodeGenerator struct {
	alphabet string
	length   int
	random   io.Reader
}

func NewCodeGenerator() *CodeGenerator {
	return &CodeGenerator{
		alphabet: config.CodeAlphabet,
		length:   config.CodeLength,
		random:   rand.Reader,
	}
}

// Generate returns a code for which exists reports false. The caller must
// insert the code before anything else can call exists, which the event loop
// guarantees.
func (g *CodeGenerator) Generate(exists func(code string) bool) (string, error) {
	for i := 0; i < maxCodeDraws; i++ {
		code, err := g.draw()
		if err != nil {
			return "", err
		}
		if exists == nil || !exists(code) {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

func (g *CodeGenerator) draw() (string, error) {
	n := len(g.alphabet)
	// Largest multiple of n that fits in a byte; bytes at or above it would
	// favour the first 256%n symbols.
	limit := 256 - 256%n

	out := make([]byte, 0, g.length)
	buf := make([]byte, g.length*2)
	for len(out) < g.length {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, g.alphabet[int(b)%n])
			if len(out) == g.length {
				break
			}
		}
	}
	return string(out), nil
}

// NormalizeCode canonicalises user input (case, separators, padding) and
// validates it against the code format. Anything that does not look like a
// code is refused before it is used as a map key.
func NormalizeCode(input string) (string, error) {
	if len(input) > config.CodeLength*3 {
		return "", apperrors.MalformedCode()
	}
	code := strings.ToUpper(strings.TrimSpace(input))
	code = strings.NewReplacer("-", "", " ", "").Replace(code)

	if !ValidCode(code) {
		return "", apperrors.MalformedCode()
	}
	return code, nil
}

// ValidCode reports whether code is already in canonical form.
func ValidCode(code string) bool {
	if len(code) != config.CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(config.CodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

