//go:build mage

// Build and test tooling via github.com/magefile/mage, the way the
// teacher repository pulls it in (as a transitive build-tool dependency
// of its logging stack) rather than hand-rolling a Makefile.
package main

import (
	"github.com/magefile/mage/sh"
)

// Test runs the full test suite with the race detector enabled.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Vet runs go vet over the module.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Lint runs go vet as a stand-in for a full linter pass; a dedicated
// linter binary isn't assumed to be present in every environment this
// module is built in.
func Lint() error {
	return Vet()
}
