// Package jmeter launches the external load-test executable against a prepared workspace.
//
// The invoker runs the tool in non-GUI mode with a fixed argument vector:
//
//	jmeter -n -t ../../../src/test/resources/stress-test.jmx -p stress-test.properties \
//		-l results.jtl -e -o report-html
//
// The workspace is the process working directory, so the test plan path is
// relative to it. [Invoker.Run] blocks until the process exits and returns a
// [Result] holding the captured output and exit status. A non-zero exit is a
// normal result, not an error; only failing to locate or launch the executable
// is reported as an [ExecutableNotFoundError].
//
// # Output Capture
//
// By default only standard output is captured. [CaptureCombined] interleaves
// standard error into the same buffer so tool diagnostics are kept on failure.
// A Tee writer additionally receives output as it is produced.
package jmeter
