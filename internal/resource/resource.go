// Package resource defines the content-addressed resource model shared by
// every collector: a scraped web page, a support ticket, or a local file
// all reduce to the same Resource contract before they reach persistence.
package resource

import (
	"crypto/md5"
	"encoding/hex"
	"math/big"
	"regexp"
)

// Resource is anything a collector produces that can be persisted to
// content-addressed storage and indexed for retrieval.
type Resource interface {
	// Hash returns the stable identifier used for the on-disk filename,
	// the sidecar metadata path, and the index.yaml key.
	Hash() string

	// Filename returns the name (including extension) used when writing
	// the resource to its collection directory.
	Filename() string

	// Content returns the bytes to persist.
	Content() ([]byte, error)

	// Metadata returns the metadata to sidecar alongside the resource, or
	// nil if the resource carries none.
	Metadata() *Metadata
}

var identifierSanitizer = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// NormalizeIdentifier collapses any run of characters outside
// [A-Za-z0-9._-] to a single underscore, matching the collectors' shared
// convention for turning arbitrary ticket/source identifiers into safe
// filename components.
func NormalizeIdentifier(id string) string {
	return identifierSanitizer.ReplaceAllString(id, "_")
}

// hash12Decimal returns the first 12 decimal digits of the MD5 digest of
// value read as an unsigned integer (str(int(hexdigest, 16))[:12] in
// Python terms), not raw hex.
func hash12Decimal(value string) string {
	sum := md5.Sum([]byte(value))
	n := new(big.Int).SetBytes(sum[:])
	s := n.String()
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

// hash12Hex returns the first 12 hex characters of the MD5 digest, used by
// ScrapedResource (hashing its URL) and LocalFileResource (hashing its
// path).
func hash12Hex(value string) string {
	sum := md5.Sum([]byte(value))
	return hex.EncodeToString(sum[:])[:12]
}
