package store

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/pitabwire/repairdesk/model"
)

// DefaultAlphabet is used when a section does not declare an ID alphabet.
const DefaultAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultIDLength is used when a section does not declare an ID length.
const DefaultIDLength = 10

// IDGenerator produces a new candidate record identifier.
type IDGenerator func() (string, error)

// NewIDGenerator returns a generator of prefix + length random characters
// drawn from alphabet.
func NewIDGenerator(prefix, alphabet string, length int) IDGenerator {
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	if length <= 0 {
		length = DefaultIDLength
	}
	return func() (string, error) {
		id, err := nanoid.Generate(alphabet, length)
		if err != nil {
			return "", fmt.Errorf("store: generate id: %w", err)
		}
		return prefix + id, nil
	}
}

// GeneratorFor builds the generator declared by an entity definition.
func GeneratorFor(def model.IDDefinition) IDGenerator {
	return NewIDGenerator(def.Prefix, def.Alphabet, def.Length)
}
