// Package preflight checks that a workspace can be indexed before the
// index is opened.
//
// The package validates:
//   - Free disk space under the data directory (minimum 100MB)
//   - Write permission in the data directory
//   - The open file descriptor limit (minimum 1024)
//   - Configuration validity
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, root, dataDir)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
