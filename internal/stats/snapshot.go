package stats

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/codec"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/digest"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
)

// TermStat is one row of a snapshot's IDF table.
type TermStat struct {
	Term    string  `cbor:"t"`
	DocFreq int     `cbor:"n"`
	IDF     float64 `cbor:"i"`
}

// Snapshot is the serialisable form of Statistics used for replay.
type Snapshot struct {
	K1          float64       `cbor:"k1"`
	B           float64       `cbor:"b"`
	DocCount    int           `cbor:"docs"`
	TotalLength int64         `cbor:"len"`
	AvgDocLen   float64       `cbor:"avgdl"`
	Reference   digest.Digest `cbor:"ref"`
	Fingerprint digest.Digest `cbor:"fp"`
	Terms       []TermStat    `cbor:"terms"`
}

// Snapshot captures the frozen table, terms in ascending order.
func (s *Statistics) Snapshot() Snapshot {
	terms := s.sortedTerms()
	snap := Snapshot{
		K1:          s.k1,
		B:           s.b,
		DocCount:    s.docCount,
		TotalLength: s.totalLength,
		AvgDocLen:   s.avgdl,
		Reference:   s.reference,
		Fingerprint: s.fingerprint,
		Terms:       make([]TermStat, len(terms)),
	}
	for i, term := range terms {
		snap.Terms[i] = TermStat{Term: term, DocFreq: s.docFreq[term], IDF: s.idf[term]}
	}
	return snap
}

// FromSnapshot rebuilds Statistics from a replayed snapshot. The fingerprint
// is recomputed and must equal the recorded one.
func FromSnapshot(snap Snapshot) (*Statistics, error) {
	if err := validateParams(snap.K1, snap.B); err != nil {
		return nil, err
	}
	s := &Statistics{
		k1:          snap.K1,
		b:           snap.B,
		docCount:    snap.DocCount,
		totalLength: snap.TotalLength,
		avgdl:       snap.AvgDocLen,
		docFreq:     make(map[string]int, len(snap.Terms)),
		idf:         make(map[string]float64, len(snap.Terms)),
		reference:   snap.Reference,
	}
	for _, ts := range snap.Terms {
		if _, dup := s.idf[ts.Term]; dup {
			return nil, apperrors.Newf(apperrors.ErrMalformedInput, "snapshot repeats term %q", ts.Term)
		}
		s.docFreq[ts.Term] = ts.DocFreq
		s.idf[ts.Term] = ts.IDF
	}
	fp, err := s.computeFingerprint()
	if err != nil {
		return nil, err
	}
	if fp != snap.Fingerprint {
		return nil, apperrors.Newf(apperrors.ErrHashMismatch, "statistics fingerprint %s does not match recorded %s", fp, snap.Fingerprint)
	}
	s.fingerprint = fp
	return s, nil
}

// MarshalSnapshot encodes the statistics as deterministic CBOR.
func MarshalSnapshot(s *Statistics) ([]byte, error) {
	data, err := codec.Marshal(s.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("encoding statistics snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot decodes and verifies a snapshot produced by
// MarshalSnapshot.
func UnmarshalSnapshot(data []byte) (*Statistics, error) {
	var snap Snapshot
	if err := codec.Unmarshal(data, &snap); err != nil {
		return nil, apperrors.Newf(apperrors.ErrMalformedInput, "decoding statistics snapshot: %v", err)
	}
	return FromSnapshot(snap)
}
