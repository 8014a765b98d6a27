package buildinfo

// These variables are intended to be set via -ldflags at build time:
//
//	-X 'github.com/m3rciful/xlbot/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/m3rciful/xlbot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/xlbot/core/buildinfo.Date=2025-08-30T12:00:00Z'
var (
	Version = "dev"
	Commit  = "local"
	Date    = ""
)

// String renders the build identity for `xlbot version` and startup logs.
func String() string {
	s := Version + " (" + Commit
	if Date != "" {
		s += ", " + Date
	}
	return s + ")"
}
