package domain

import (
	"kittycore/testutil"
	"testing"
)

// TestDomainImportsOnlyStandardLibrary keeps the domain layer free of
// internal packages and third-party modules.
func TestDomainImportsOnlyStandardLibrary(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "domain must not depend on internal packages")
	testutil.AssertNoDirectImports(t, ".", testutil.ThirdPartyImportForbidden, "domain must only use the standard library")
}

func TestDomainHasNoTransitiveInfraDependency(t *testing.T) {
	if testing.Short() {
		t.Skip("shells out to go list")
	}
	testutil.AssertNoTransitiveDependency(t, ".", testutil.InfraImportForbidden, "domain must not reach storage drivers")
}
