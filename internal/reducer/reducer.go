package reducer

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
)

// Reduce selects the retained subset of full for the query workload and
// returns the manifest describing it. Calling Reduce twice with identical
// inputs yields byte-identical manifests for any Workers value.
func Reduce(ctx context.Context, full *corpus.View, queries []corpus.Query, params Params) (*Manifest, error) {
	logger := slog.Default().With("component", "reducer")
	if err := params.validate(); err != nil {
		return nil, err
	}
	if err := corpus.ValidateQueries(queries); err != nil {
		return nil, err
	}
	protected, err := ProtectedSet(ctx, full, queries, params)
	if err != nil {
		return nil, err
	}

	decision, err := prune(ctx, full, protected, params)
	if err != nil {
		return nil, err
	}

	// Every protected document must survive pruning.
	retainedSet := make(map[string]struct{}, len(decision.retained))
	for _, id := range decision.retained {
		retainedSet[id] = struct{}{}
	}
	for _, id := range protected {
		if _, ok := retainedSet[id]; !ok {
			return nil, apperrors.New(apperrors.ErrReduction, "protected document missing from retained set").ForDoc(id)
		}
	}

	manifest, err := newManifest(full, queries, params, protected, decision)
	if err != nil {
		return nil, err
	}
	logger.Info("corpus reduced",
		"strategy", params.Strategy,
		"full_docs", full.DocCount(),
		"protected", len(protected),
		"retained", len(manifest.Retained),
		"manifest_hash", manifest.ManifestHash.String(),
	)
	return manifest, nil
}

// ProtectedSet returns, in ascending order, every document that must survive
// reduction: the union over queries of documents sharing a term with the
// query, plus the zero-score fill when enabled.
func ProtectedSet(ctx context.Context, full *corpus.View, queries []corpus.Query, params Params) ([]string, error) {
	if !full.Indexed() {
		return nil, apperrors.New(apperrors.ErrReduction, "full view has no term index")
	}

	perQuery := make([][]string, len(queries))
	g, _ := errgroup.WithContext(ctx)
	if params.Workers > 0 {
		g.SetLimit(params.Workers)
	}
	for i, q := range queries {
		g.Go(func() error {
			perQuery[i] = candidates(full, q)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.Newf(apperrors.ErrReduction, "computing candidate sets: %v", err)
	}

	protected := make(map[string]struct{})
	for _, ids := range perQuery {
		for _, id := range ids {
			protected[id] = struct{}{}
		}
	}
	if params.ZeroScoreFill {
		allIDs := full.IDs()
		for i := range queries {
			for _, id := range zeroScoreFill(allIDs, perQuery[i], params.TopK) {
				protected[id] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(protected))
	for id := range protected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// candidates lists, in ascending order, the documents containing at least
// one query term.
func candidates(full *corpus.View, q corpus.Query) []string {
	seen := make(map[string]struct{})
	for _, term := range q.Terms {
		for _, p := range full.Postings(term) {
			seen[p.DocID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// zeroScoreFill returns the topK-len(cands) smallest identifiers that are
// not candidates. Those are exactly the zero-score documents a full ranking
// places inside its top-K.
func zeroScoreFill(allIDs, cands []string, topK int) []string {
	need := topK - len(cands)
	if need <= 0 {
		return nil
	}
	fill := make([]string, 0, need)
	c := 0
	for _, id := range allIDs {
		for c < len(cands) && cands[c] < id {
			c++
		}
		if c < len(cands) && cands[c] == id {
			continue
		}
		fill = append(fill, id)
		if len(fill) == need {
			break
		}
	}
	return fill
}

type pruneDecision struct {
	retained        []string
	representatives []Representative
}

func prune(ctx context.Context, full *corpus.View, protected []string, params Params) (pruneDecision, error) {
	isProtected := make(map[string]struct{}, len(protected))
	for _, id := range protected {
		isProtected[id] = struct{}{}
	}

	switch params.Strategy {
	case StrategyNone:
		return pruneDecision{retained: full.IDs()}, nil
	case StrategyProtectedOnly:
		retained := make([]string, len(protected))
		copy(retained, protected)
		return pruneDecision{retained: retained}, nil
	case StrategyDedupExact, StrategyDedupTermSet:
		return dedup(ctx, full, isProtected, params)
	default:
		return pruneDecision{}, apperrors.Newf(apperrors.ErrReduction, "unhandled strategy %q", params.Strategy)
	}
}

type fingerprinted struct {
	doc     *corpus.Document
	listing []string
	sum     uint64
}

// dedup groups documents by content and keeps, per group, every protected
// member or else the lowest-identifier member. Groups are keyed by an
// xxhash fingerprint and then split on exact listing equality, so a hash
// collision can never merge different content.
func dedup(ctx context.Context, full *corpus.View, isProtected map[string]struct{}, params Params) (pruneDecision, error) {
	docs := full.Documents()
	prints := make([]fingerprinted, len(docs))

	workers := params.Workers
	if workers < 1 {
		workers = 1
	}
	chunk := (len(docs) + workers - 1) / workers
	g, _ := errgroup.WithContext(ctx)
	for lo := 0; lo < len(docs); lo += chunk {
		hi := min(lo+chunk, len(docs))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				prints[i] = fingerprint(docs[i], params.Strategy)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return pruneDecision{}, apperrors.Newf(apperrors.ErrReduction, "fingerprinting documents: %v", err)
	}

	// prints is in ascending ID order, so every bucket and every group is
	// too, and the first member of a group is its lowest identifier.
	buckets := make(map[uint64][][]fingerprinted)
	var order []uint64
	for _, fp := range prints {
		groups, seen := buckets[fp.sum]
		if !seen {
			order = append(order, fp.sum)
		}
		placed := false
		for gi := range groups {
			if slices.Equal(groups[gi][0].listing, fp.listing) {
				groups[gi] = append(groups[gi], fp)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []fingerprinted{fp})
		}
		buckets[fp.sum] = groups
	}

	var retained []string
	var reps []Representative
	for _, sum := range order {
		for _, group := range buckets[sum] {
			kept, rep := decideGroup(group, isProtected)
			retained = append(retained, kept...)
			if rep.Collapsed > 0 {
				reps = append(reps, rep)
			}
		}
	}
	sort.Strings(retained)
	sort.Slice(reps, func(i, j int) bool {
		return reps[i].DocID < reps[j].DocID
	})
	return pruneDecision{retained: retained, representatives: reps}, nil
}

func decideGroup(group []fingerprinted, isProtected map[string]struct{}) ([]string, Representative) {
	var kept []string
	for _, member := range group {
		if _, ok := isProtected[member.doc.ID()]; ok {
			kept = append(kept, member.doc.ID())
		}
	}
	if len(kept) == 0 {
		kept = []string{group[0].doc.ID()}
	}
	return kept, Representative{DocID: kept[0], Collapsed: len(group) - len(kept)}
}

func fingerprint(doc *corpus.Document, strategy Strategy) fingerprinted {
	var listing []string
	if strategy == StrategyDedupTermSet {
		listing = doc.DistinctTerms()
	} else {
		listing = doc.Terms()
	}
	h := xxhash.New()
	var lenBuf [binary.MaxVarintLen64]byte
	for _, term := range listing {
		n := binary.PutUvarint(lenBuf[:], uint64(len(term)))
		_, _ = h.Write(lenBuf[:n])
		_, _ = h.WriteString(term)
	}
	return fingerprinted{doc: doc, listing: listing, sum: h.Sum64()}
}

// Apply builds the reduced view described by the manifest.
func Apply(full *corpus.View, m *Manifest) (*corpus.View, error) {
	if full.Hash() != m.FullCorpusHash {
		return nil, apperrors.Newf(apperrors.ErrHashMismatch, "manifest was produced for corpus %s, view is %s", m.FullCorpusHash, full.Hash())
	}
	reduced, err := full.Subset(m.Retained)
	if err != nil {
		return nil, fmt.Errorf("building reduced view: %w", err)
	}
	if reduced.Hash() != m.RetainedHash {
		return nil, apperrors.Newf(apperrors.ErrHashMismatch, "reduced view hash %s does not match manifest %s", reduced.Hash(), m.RetainedHash)
	}
	return reduced, nil
}
