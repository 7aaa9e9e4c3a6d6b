package buildinfo

// These variables are intended to be set via -ldflags at build time:
//
//	-X 'github.com/m3rciful/taskly/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/m3rciful/taskly/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/taskly/core/buildinfo.Date=2026-10-01T12:00:00Z'
var (
	// Version reports the semantic version or tag of the build.
	Version = "dev"
	// Commit reports the source control commit used for the build.
	Commit = "local"
	// Date reports the build timestamp in RFC3339 format.
	Date = ""
)

// String renders version, commit and date as a single line for logs and /jobs output.
func String() string {
	s := Version + " (" + Commit
	if Date != "" {
		s += ", " + Date
	}
	return s + ")"
}
