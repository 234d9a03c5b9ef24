// Package app defines the contract between command line options and the
// application bootstrapper.
package app

import cliflag "github.com/kart-io/megaservice/pkg/app/cliflag"

// CliOptions abstracts configuration options for reading parameters from the
// command line.
type CliOptions interface {
	// Flags returns flags grouped by section.
	Flags() cliflag.NamedFlagSets
	// Complete fills in derived values after flags and config are loaded.
	Complete() error
	// Validate checks all options and returns an aggregated error.
	Validate() error
}
