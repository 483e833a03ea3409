// Package exitcodes defines the standard exit codes used by logstash-acceptor.
package exitcodes

// Exit code constants used by logstash-acceptor:
//
// * Success (0): Used when every test case passes
// * TestFailure (1): Used when a fixture comparison fails
// * RuntimeErr (2): Used for runtime errors such as build, container or
// health-check failures
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
