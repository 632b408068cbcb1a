// Package config loads gateway configuration.
//
// Gateway state (authority, enablement, signature policy) comes from a CUE
// file validated against an embedded schema. Process settings (database
// path, redis address, environment) come from MSGGATE_* environment
// variables.
package config

import (
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/msggate/internal/admission"
	"github.com/roach88/msggate/internal/wire"
)

//go:embed schema.cue
var schemaCUE string

// Deployment environments.
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = admission.EnvProduction
)

// Gateway is the gateway configuration record.
type Gateway struct {
	Authority     string       `json:"authority"`
	SystemEnabled bool         `json:"system_enabled"`
	DestChainID   wire.ChainID `json:"dest_chain_id"`
	GatewayRef    string       `json:"gateway_ref"`
	Environment   string       `json:"environment"`
	Signatures    Signatures   `json:"signatures"`
}

// Signatures is the signature policy block.
type Signatures struct {
	Enabled   bool     `json:"enabled"`
	Threshold int      `json:"threshold"`
	Signers   []string `json:"signers"`
}

// Error is a configuration error with the CUE source position when known.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadFile reads and validates a gateway configuration file.
func LoadFile(path string) (Gateway, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Gateway{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, src)
}

// Parse validates src (named filename in error positions) against the
// schema and extracts the gateway block.
func Parse(filename string, src []byte) (Gateway, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Gateway{}, fmt.Errorf("compile embedded schema: %w", err)
	}

	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return Gateway{}, formatCUEError(err)
	}

	v := schema.Unify(user).LookupPath(cue.ParsePath("gateway"))
	if !v.Exists() {
		return Gateway{}, &Error{Field: "gateway", Message: "gateway block is required"}
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Gateway{}, formatCUEError(err)
	}

	return extractGateway(v)
}

func extractGateway(v cue.Value) (Gateway, error) {
	var g Gateway
	var err error

	if g.Authority, err = v.LookupPath(cue.ParsePath("authority")).String(); err != nil {
		return Gateway{}, formatCUEError(err)
	}
	if g.SystemEnabled, err = v.LookupPath(cue.ParsePath("system_enabled")).Bool(); err != nil {
		return Gateway{}, formatCUEError(err)
	}
	dest, err := v.LookupPath(cue.ParsePath("dest_chain_id")).Uint64()
	if err != nil {
		return Gateway{}, formatCUEError(err)
	}
	g.DestChainID = wire.ChainID(dest)
	if g.GatewayRef, err = v.LookupPath(cue.ParsePath("gateway_ref")).String(); err != nil {
		return Gateway{}, formatCUEError(err)
	}
	if g.Environment, err = v.LookupPath(cue.ParsePath("environment")).String(); err != nil {
		return Gateway{}, formatCUEError(err)
	}

	sv := v.LookupPath(cue.ParsePath("signatures"))
	if g.Signatures.Enabled, err = sv.LookupPath(cue.ParsePath("enabled")).Bool(); err != nil {
		return Gateway{}, formatCUEError(err)
	}
	threshold, err := sv.LookupPath(cue.ParsePath("threshold")).Int64()
	if err != nil {
		return Gateway{}, formatCUEError(err)
	}
	g.Signatures.Threshold = int(threshold)

	iter, err := sv.LookupPath(cue.ParsePath("signers")).List()
	if err != nil {
		return Gateway{}, formatCUEError(err)
	}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return Gateway{}, formatCUEError(err)
		}
		g.Signatures.Signers = append(g.Signatures.Signers, s)
	}

	if g.Environment == EnvProduction && !g.Signatures.Enabled {
		return Gateway{}, &Error{
			Field:   "gateway.signatures.enabled",
			Message: "signature enforcement cannot be disabled in production",
			Pos:     sv.Pos(),
		}
	}

	return g, nil
}

// Capability returns the authority capability described by g.
func (g Gateway) Capability() admission.StaticAuthority {
	return admission.StaticAuthority{
		Identity:   g.Authority,
		Enabled:    g.SystemEnabled,
		GatewayRef: g.GatewayRef,
	}
}

// PolicyConfig decodes the signer keys into an admission.PolicyConfig.
func (g Gateway) PolicyConfig() (admission.PolicyConfig, error) {
	cfg := admission.PolicyConfig{
		Enabled:   g.Signatures.Enabled,
		Threshold: g.Signatures.Threshold,
	}
	for i, s := range g.Signatures.Signers {
		key, err := hex.DecodeString(s)
		if err != nil {
			return admission.PolicyConfig{}, fmt.Errorf("signer %d: %w", i, err)
		}
		cfg.Signers = append(cfg.Signers, key)
	}
	return cfg, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := cueerrors.Positions(first)
	if len(positions) > 0 {
		return &Error{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
