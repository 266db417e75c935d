package gpg

import (
	"bytes"
	"context"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"go.skia.org/revgraph/go/graph"
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/skerr"
	"go.skia.org/revgraph/go/sklog"
	"go.skia.org/revgraph/go/util"
)

// Signer signs revision testaments with one private key.
type Signer struct {
	entity *openpgp.Entity
	config *packet.Config
}

// NewSigner returns a Signer for entity, which must hold a private key.
func NewSigner(entity *openpgp.Entity, config *packet.Config) (*Signer, error) {
	if entity == nil || entity.PrivateKey == nil {
		return nil, skerr.Fmt("signing needs a private key")
	}
	if entity.PrivateKey.Encrypted {
		return nil, skerr.Fmt("private key %s is encrypted", entity.PrimaryKey.KeyIdString())
	}
	return &Signer{entity: entity, config: config}, nil
}

// LoadSigner reads an armored private key and returns a Signer for the
// first key in it.
func LoadSigner(path string) (*Signer, error) {
	var keys openpgp.EntityList
	err := util.WithReadFile(path, func(r io.Reader) error {
		var err error
		keys, err = openpgp.ReadArmoredKeyRing(r)
		return err
	})
	if err != nil {
		return nil, skerr.Wrapf(err, "reading key %s", path)
	}
	for _, e := range keys {
		if e.PrivateKey != nil {
			return NewSigner(e, nil)
		}
	}
	return nil, skerr.Fmt("%s holds no private key", path)
}

// Sign returns a detached signature over the testament of rev.
func (s *Signer) Sign(rev *revision.Revision) (*revstore.Signature, error) {
	payload := revision.Testament(rev)
	var buf bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&buf, s.entity, bytes.NewReader(payload), s.config); err != nil {
		return nil, skerr.Wrapf(err, "signing %s", rev.ID)
	}
	return &revstore.Signature{Payload: payload, Armored: buf.Bytes()}, nil
}

// SignOptions configures SignMissing.
type SignOptions struct {
	// Committer, if set, restricts signing to revisions with exactly this
	// committer.
	Committer string
	// DryRun reports what would be signed without writing anything.
	DryRun bool
}

// SignMissing signs every unsigned revision in the ancestry of tip, oldest
// first. All signatures are written in one write group: either every one
// is stored or none is. It returns the revisions signed, or that would be
// signed in a dry run.
func SignMissing(ctx context.Context, s revstore.SignatureStore, g *graph.Graph, tip revision.ID, signer *Signer, opts SignOptions) ([]revision.ID, error) {
	store, ok := s.(revstore.Store)
	if !ok {
		return nil, skerr.Wrapf(revstore.ErrUnsupported, "reading revisions to sign")
	}
	ancestry, err := g.AncestryParentMap(ctx, []revision.ID{tip})
	if err != nil {
		return nil, err
	}
	order, err := graph.TopologicalSort(ancestry)
	if err != nil {
		return nil, err
	}

	var toSign []*revision.Revision
	for entry, err := range revstore.IterRevisions(ctx, store, order) {
		if err != nil {
			return nil, skerr.Wrapf(err, "reading revisions to sign")
		}
		rev := entry.Rev
		if rev == nil || (opts.Committer != "" && rev.Committer != opts.Committer) {
			continue
		}
		sig, err := s.GetSignature(ctx, rev.ID)
		if err != nil {
			return nil, skerr.Wrapf(err, "reading signature of %s", rev.ID)
		}
		if sig == nil {
			toSign = append(toSign, rev)
		}
	}
	ids := make([]revision.ID, 0, len(toSign))
	for _, rev := range toSign {
		ids = append(ids, rev.ID)
	}
	if opts.DryRun || len(toSign) == 0 {
		return ids, nil
	}

	wg, err := s.StartWriteGroup(ctx)
	if err != nil {
		return nil, skerr.Wrapf(err, "starting write group")
	}
	abort := func(err error) error {
		if abortErr := wg.Abort(ctx); abortErr != nil {
			sklog.Errorf("Failed to abort write group: %s", abortErr)
		}
		return err
	}
	for _, rev := range toSign {
		sig, err := signer.Sign(rev)
		if err != nil {
			return nil, abort(err)
		}
		if err := wg.AddSignature(ctx, rev.ID, sig); err != nil {
			return nil, abort(skerr.Wrapf(err, "storing signature of %s", rev.ID))
		}
	}
	if err := wg.Commit(ctx); err != nil {
		return nil, abort(skerr.Wrapf(err, "committing %d signatures", len(toSign)))
	}
	sklog.Infof("Signed %d revisions", len(ids))
	return ids, nil
}
