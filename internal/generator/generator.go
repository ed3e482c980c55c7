package generator

import (
	"github.com/google/uuid"
)

// Generator produces values on demand, such as unique identifiers.
type Generator[T any] interface {
	Next() (T, error)
}

// UUIDV4Generator produces random UUIDs. Soundcron IDs use it.
type UUIDV4Generator struct{}

func (g *UUIDV4Generator) Next() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// UUIDV7Generator produces time-ordered UUIDs, so IDs minted later sort
// after earlier ones. Flow instance IDs use it.
type UUIDV7Generator struct{}

func (g *UUIDV7Generator) Next() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

var (
	_ Generator[string] = &UUIDV4Generator{}
	_ Generator[string] = &UUIDV7Generator{}
)
