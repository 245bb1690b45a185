// Package digest computes domain-separated BLAKE3 hashes over the
// deterministic CBOR encoding of a value. Every hash that appears in a
// manifest or report is produced here, so identical logical inputs always
// yield identical digests.
package digest

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/codec"
)

// Size is the digest length in bytes.
const Size = 32

// Digest is a 32-byte BLAKE3 keyed hash.
type Digest [Size]byte

// Domain is a 32-byte BLAKE3 key. The same bytes hashed under different
// domains produce unrelated digests.
type Domain [Size]byte

// Domains used across the module. Changing a value invalidates every stored
// digest in that domain.
var (
	CorpusDomain   = NewDomain("bm25equiv.corpus")
	DocumentDomain = NewDomain("bm25equiv.document")
	QueryDomain    = NewDomain("bm25equiv.queries")
	RetainedDomain = NewDomain("bm25equiv.retained")
	ManifestDomain = NewDomain("bm25equiv.manifest")
	StatsDomain    = NewDomain("bm25equiv.statistics")
	RankingDomain  = NewDomain("bm25equiv.ranking")
	ReportDomain   = NewDomain("bm25equiv.report")
)

// NewDomain zero-pads name to 32 bytes. Panics when name is longer.
func NewDomain(name string) Domain {
	if len(name) > Size {
		panic(fmt.Sprintf("digest: domain name %q exceeds %d bytes", name, Size))
	}
	var d Domain
	copy(d[:], name)
	return d
}

// Bytes hashes raw bytes under the domain key.
func Bytes(domain Domain, data []byte) Digest {
	hasher, err := blake3.NewKeyed(domain[:])
	if err != nil {
		panic("digest: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var out Digest
	copy(out[:], hasher.Sum(nil))
	return out
}

// Of hashes the deterministic CBOR encoding of v under the domain key.
func Of(domain Domain, v any) (Digest, error) {
	data, err := codec.Marshal(v)
	if err != nil {
		return Digest{}, fmt.Errorf("encoding value for hashing: %w", err)
	}
	return Bytes(domain, data), nil
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// MarshalText encodes the digest as lowercase hex for JSON output.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Parse decodes a 64-character hex digest.
func Parse(s string) (Digest, error) {
	var d Digest
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("parsing digest: %w", err)
	}
	if len(decoded) != Size {
		return d, fmt.Errorf("digest is %d bytes, want %d", len(decoded), Size)
	}
	copy(d[:], decoded)
	return d, nil
}
