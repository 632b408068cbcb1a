package admission

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/msggate/internal/wire"
)

// ErrSignaturesDisabled is returned by Policy.AssertEnforced when signature
// enforcement is off.
var ErrSignaturesDisabled = errors.New("signature enforcement disabled")

// Verifier is the signature verification oracle. Given a digest and the
// attached signatures it reports, per signature, whether it is valid over
// the digest. It applies no policy of its own.
type Verifier interface {
	Verify(digest wire.Digest, sigs []wire.Signature) []bool
}

// Ed25519Verifier verifies Ed25519 signatures. Malformed keys or
// signatures verify as false.
type Ed25519Verifier struct{}

// Verify implements Verifier.
func (Ed25519Verifier) Verify(digest wire.Digest, sigs []wire.Signature) []bool {
	verdicts := make([]bool, len(sigs))
	for i, sig := range sigs {
		if len(sig.Signer) != ed25519.PublicKeySize || len(sig.Signature) != ed25519.SignatureSize {
			continue
		}
		verdicts[i] = ed25519.Verify(ed25519.PublicKey(sig.Signer), digest.Bytes(), sig.Signature)
	}
	return verdicts
}

// PolicyConfig describes the signature policy.
type PolicyConfig struct {
	// Enabled turns enforcement on. When false every signature check is
	// bypassed; this is only acceptable in test and bootstrap environments.
	Enabled bool

	// Threshold is the number of distinct authorized signers required.
	Threshold int

	// Signers are the authorized Ed25519 public keys.
	Signers [][]byte
}

// Policy applies threshold and signer-set rules to the oracle's verdicts.
type Policy struct {
	enabled   bool
	threshold int
	signers   map[string]struct{}
	verifier  Verifier
	logger    *zap.Logger
}

// NewPolicy validates cfg and returns a Policy.
//
// A disabled policy is logged at warn level here, once, so the bypass is
// always visible in the process log.
func NewPolicy(cfg PolicyConfig, verifier Verifier, logger *zap.Logger) (*Policy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if verifier == nil {
		verifier = Ed25519Verifier{}
	}

	p := &Policy{
		enabled:   cfg.Enabled,
		threshold: cfg.Threshold,
		signers:   make(map[string]struct{}, len(cfg.Signers)),
		verifier:  verifier,
		logger:    logger,
	}
	for i, key := range cfg.Signers {
		if len(key) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("signer %d: want %d-byte ed25519 key, got %d bytes", i, ed25519.PublicKeySize, len(key))
		}
		p.signers[string(key)] = struct{}{}
	}

	if !cfg.Enabled {
		logger.Warn("signature enforcement DISABLED: messages are admitted without signature checks",
			zap.Int("configured_signers", len(p.signers)),
		)
		return p, nil
	}

	if cfg.Threshold < 1 {
		return nil, fmt.Errorf("signature threshold must be at least 1, got %d", cfg.Threshold)
	}
	if cfg.Threshold > len(p.signers) {
		return nil, fmt.Errorf("signature threshold %d exceeds %d distinct signers", cfg.Threshold, len(p.signers))
	}

	logger.Info("signature enforcement enabled",
		zap.Int("threshold", cfg.Threshold),
		zap.Int("signers", len(p.signers)),
	)
	return p, nil
}

// DisabledPolicy returns a policy that bypasses signature checks.
func DisabledPolicy(logger *zap.Logger) *Policy {
	p, _ := NewPolicy(PolicyConfig{}, nil, logger)
	return p
}

// Enabled reports whether signatures are enforced.
func (p *Policy) Enabled() bool {
	return p.enabled
}

// Threshold returns the required number of distinct valid signers.
func (p *Policy) Threshold() int {
	return p.threshold
}

// AssertEnforced returns ErrSignaturesDisabled unless enforcement is on.
// Production deployments call this before admitting anything.
func (p *Policy) AssertEnforced() error {
	if !p.enabled {
		return ErrSignaturesDisabled
	}
	return nil
}

// Check applies the policy to sigs over digest.
//
// With enforcement on, every attached signer must be authorized
// (ErrUnauthorizedSigner), every signature must verify (ErrInvalidSignature),
// and at least Threshold distinct signers must remain
// (ErrInsufficientSignatures).
func (p *Policy) Check(digest wire.Digest, sigs []wire.Signature) error {
	if !p.enabled {
		p.logger.Debug("signature check bypassed",
			zap.Stringer("digest", digest),
			zap.Int("attached", len(sigs)),
		)
		return nil
	}

	for _, sig := range sigs {
		if _, ok := p.signers[string(sig.Signer)]; !ok {
			return fmt.Errorf("signer %s: %w", hex.EncodeToString(sig.Signer), ErrUnauthorizedSigner)
		}
	}

	verdicts := p.verifier.Verify(digest, sigs)
	if len(verdicts) != len(sigs) {
		return fmt.Errorf("verifier returned %d verdicts for %d signatures", len(verdicts), len(sigs))
	}

	distinct := make(map[string]struct{}, len(sigs))
	for i, ok := range verdicts {
		if !ok {
			return fmt.Errorf("signature %d by %s: %w", i, hex.EncodeToString(sigs[i].Signer), ErrInvalidSignature)
		}
		distinct[string(sigs[i].Signer)] = struct{}{}
	}

	if len(distinct) < p.threshold {
		return fmt.Errorf("%d of %d required signers: %w", len(distinct), p.threshold, ErrInsufficientSignatures)
	}
	return nil
}
