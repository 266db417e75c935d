// Package gpg verifies and creates OpenPGP signatures of revisions.
package gpg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	pgperrors "github.com/ProtonMail/go-crypto/openpgp/errors"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"go.skia.org/revgraph/go/metrics2"
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/skerr"
	"go.skia.org/revgraph/go/sklog"
	"go.skia.org/revgraph/go/util"
)

// Status is the outcome of verifying one revision.
type Status int

const (
	StatusValid Status = iota
	StatusKeyMissing
	StatusNotValid
	StatusNotSigned
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusKeyMissing:
		return "key_missing"
	case StatusNotValid:
		return "not_valid"
	case StatusNotSigned:
		return "not_signed"
	case StatusExpired:
		return "expired"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Verification is the result of verifying one revision. Key names the
// signer when it is known, or else the id of the key that signed.
type Verification struct {
	Status    Status
	Key       string
	Plaintext []byte
}

// Message describes v in one line.
func (v *Verification) Message() string {
	switch v.Status {
	case StatusValid:
		return fmt.Sprintf("valid signature from %s", v.Key)
	case StatusKeyMissing:
		return fmt.Sprintf("unknown key %s", v.Key)
	case StatusNotValid:
		return "invalid signature!"
	case StatusNotSigned:
		return "no signature"
	case StatusExpired:
		return fmt.Sprintf("signature expired for %s", v.Key)
	}
	return v.Status.String()
}

// LoadKeyring reads an ASCII-armored keyring.
func LoadKeyring(path string) (openpgp.EntityList, error) {
	var ret openpgp.EntityList
	err := util.WithReadFile(path, func(r io.Reader) error {
		var err error
		ret, err = openpgp.ReadArmoredKeyRing(r)
		return err
	})
	if err != nil {
		return nil, skerr.Wrapf(err, "reading keyring %s", path)
	}
	return ret, nil
}

// VerifierOptions configures a Verifier.
type VerifierOptions struct {
	// Testaments, if set, is read to check that the signed payload is the
	// testament of the revision. Stores that sign something else, such as
	// git commits, leave it unset.
	Testaments revstore.Store
	// Config is passed to the OpenPGP library. Its clock decides expiry.
	Config *packet.Config
}

// Verifier checks revision signatures against a keyring.
type Verifier struct {
	src      revstore.SignatureSource
	keyring  openpgp.EntityList
	opts     VerifierOptions
	verified metrics2.Counter
}

// NewVerifier returns a Verifier reading signatures from src.
func NewVerifier(src revstore.SignatureSource, keyring openpgp.EntityList, opts VerifierOptions) *Verifier {
	return &Verifier{
		src:      src,
		keyring:  keyring,
		opts:     opts,
		verified: metrics2.GetCounter("revgraph_signatures_verified"),
	}
}

// Verify checks the signature of id. Only failing to read the store is an
// error; a bad signature is a Status.
func (v *Verifier) Verify(ctx context.Context, id revision.ID) (*Verification, error) {
	sig, err := v.src.GetSignature(ctx, id)
	if err != nil {
		return nil, skerr.Wrapf(err, "reading signature of %s", id)
	}
	if sig == nil {
		return &Verification{Status: StatusNotSigned}, nil
	}
	v.verified.Inc(1)
	signer, err := openpgp.CheckArmoredDetachedSignature(v.keyring, bytes.NewReader(sig.Payload), bytes.NewReader(sig.Armored), v.opts.Config)
	switch {
	case err == nil:
	case errors.Is(err, pgperrors.ErrUnknownIssuer):
		return &Verification{Status: StatusKeyMissing, Key: issuer(sig.Armored)}, nil
	case errors.Is(err, pgperrors.ErrSignatureExpired), errors.Is(err, pgperrors.ErrKeyExpired):
		return &Verification{Status: StatusExpired, Key: entityName(signer, sig.Armored)}, nil
	default:
		sklog.Debugf("Signature of %s does not verify: %s", id, err)
		return &Verification{Status: StatusNotValid}, nil
	}
	if v.opts.Testaments != nil {
		rev, err := revstore.GetRevision(ctx, v.opts.Testaments, id)
		if err != nil {
			return nil, err
		}
		if rev == nil || !bytes.Equal(revision.Testament(rev), sig.Payload) {
			return &Verification{Status: StatusNotValid}, nil
		}
	}
	return &Verification{Status: StatusValid, Key: entityName(signer, sig.Armored), Plaintext: sig.Payload}, nil
}

// SignatureValidity describes the signature of id in one line.
func (v *Verifier) SignatureValidity(ctx context.Context, id revision.ID) (string, error) {
	res, err := v.Verify(ctx, id)
	if err != nil {
		return "", err
	}
	return res.Message(), nil
}

// VerifyAll verifies every id and counts the outcomes.
func (v *Verifier) VerifyAll(ctx context.Context, ids []revision.ID) (map[Status]int, error) {
	ret := map[Status]int{}
	for _, id := range ids {
		res, err := v.Verify(ctx, id)
		if err != nil {
			return nil, err
		}
		ret[res.Status]++
	}
	return ret, nil
}

func entityName(e *openpgp.Entity, armored []byte) string {
	if e == nil {
		return issuer(armored)
	}
	if id := e.PrimaryIdentity(); id != nil {
		return id.Name
	}
	return e.PrimaryKey.KeyIdString()
}

// issuer returns the id of the key that made an armored signature, or
// "unknown" if it cannot be parsed.
func issuer(armored []byte) string {
	block, err := armor.Decode(bytes.NewReader(armored))
	if err != nil {
		return "unknown"
	}
	p, err := packet.NewReader(block.Body).Next()
	if err != nil {
		return "unknown"
	}
	if sig, ok := p.(*packet.Signature); ok && sig.IssuerKeyId != nil {
		return fmt.Sprintf("%016X", *sig.IssuerKeyId)
	}
	return "unknown"
}
