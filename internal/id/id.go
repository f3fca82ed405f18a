// Package id generates prefixed, URL-safe identifiers for locally created entities.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for locally owned entities. The prefix makes a local id
// distinguishable from a remote id at a glance.
const (
	PrefixProduct = "prd"
	PrefixUsage   = "use"
	PrefixJourney = "jev"
	PrefixBag     = "bag"
	PrefixTag     = "tag"
	PrefixClient  = "obs"
)

// Generate creates a prefixed unique ID using NanoID.
// Format: prefix-nanoid (e.g., "prd-V1StGXR8_Z5jdHi6B-myT").
//
// Returns an error if the system has insufficient entropy for secure random generation.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}
