package admission_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/msggate/internal/admission"
	"github.com/roach88/msggate/internal/store"
)

const authorityID = "relay-admin"

var gatewayAuthority = admission.StaticAuthority{Identity: authorityID, Enabled: true, GatewayRef: "gw-main"}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "admission.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// newController returns a controller over a fresh store with signatures
// disabled, plus the store.
func newController(t *testing.T, opts ...admission.Option) (*admission.Controller, *store.Store) {
	t.Helper()
	s := openStore(t)
	c, err := admission.New(s, admission.DisabledPolicy(nil), opts...)
	require.NoError(t, err)
	return c, s
}
