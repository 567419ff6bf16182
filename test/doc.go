// Package test provides integration testing infrastructure for the CTS
// browser.
//
// A Suite runs the mock CTS fiber app behind an httptest server and wires
// the real API client and the synchronization layer to it, so tests cover
// the full path from a cached query down to the HTTP routes.
//
// Example Usage:
//
//	func TestExample(t *testing.T) {
//	    s := test.NewSuite(t)
//	    defer s.Cleanup()
//
//	    res := s.Sync.JobStatus(s.Context(), "job-a1b2c3d4-running-analysis")
//	    // res.Data holds the status served by the mock CTS
//	    // s.Requests(...) reports how often the server was hit
//	}
package test
