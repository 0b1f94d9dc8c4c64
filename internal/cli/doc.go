// Package cli implements the command-line interface for catalog-extract.
//
// The cli package provides the Cobra-based CLI: the root command runs a full
// extraction (config resolution, allow-list loading, the pipeline driver,
// atomic output, optional metrics textfile) and reports a run summary as
// text or JSON; the departments subcommand lists the department codes found
// on the catalog landing page. Exit codes: 0 success, 1 error, 2 when
// courses were skipped under --skip-invalid.
package cli
