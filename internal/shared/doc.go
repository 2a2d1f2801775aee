// Package shared groups helpers used across labflat packages that belong to
// no single layer.
//
// The testutil subpackage provides:
//
//   - a buffered slog handler with log assertions
//   - analyzer result and index XML builders
//   - tar archive and directory fixtures, including the reference scenario
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    logger, logs := testutil.NewTestLogger(t)
//	    dir := testutil.WriteFiles(t, t.TempDir(), testutil.ScenarioFiles())
//	    // ...
//	    testutil.AssertLogContains(t, logs, slog.LevelInfo, "archive flattened")
//	}
package shared
