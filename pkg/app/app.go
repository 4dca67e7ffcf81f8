// Package app defines the runtime contract shared by the cmd/* binaries.
//
// Each binary loads its configuration and hands it to a Runner that owns the
// process lifecycle, so cmd/* never depends on concrete components.
package app

// Runner represents a runnable application component.
type Runner interface {
	Run() error
}
