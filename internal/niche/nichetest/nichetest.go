// Package nichetest provides the certificate-of-insurance niche for tests in other packages.
package nichetest

import (
	_ "embed"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
)

//go:embed coi.yaml
var COI string

// Registry parses the COI niche.
func Registry(t testing.TB) *niche.Registry {
	t.Helper()
	return Parse(t, COI)
}

// Parse builds a registry from YAML, failing the test on any violation.
func Parse(t testing.TB, yaml string) *niche.Registry {
	t.Helper()
	reg, err := niche.Parse("nichetest.yaml", []byte(yaml))
	require.NoError(t, err)
	return reg
}

// Store wraps regs, defaulting to the COI niche.
func Store(t testing.TB, regs ...*niche.Registry) *niche.Store {
	t.Helper()
	if len(regs) == 0 {
		regs = []*niche.Registry{Registry(t)}
	}
	return niche.NewStaticStore(regs[0].ID(), regs...)
}
