// Package buildinfo contains build-time metadata kept apart from user
// configuration.
package buildinfo

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

// Set with -ldflags "-X github.com/tphakala/qcline/internal/buildinfo.version=..."
var (
	version   = "dev"
	buildDate = ""
)

// BuildInfo provides access to build-time metadata.
type BuildInfo interface {
	GetVersion() string
	GetBuildDate() string
	GetRunID() string
}

// Context contains build-time metadata plus the identifier of the current
// simulation run.
type Context struct {
	Version   string
	BuildDate string
	RunID     string
}

// NewContext creates a Context.
func NewContext(version, buildDate, runID string) *Context {
	return &Context{Version: version, BuildDate: buildDate, RunID: runID}
}

// Current returns the metadata linked into this binary.
func Current(runID string) *Context {
	return NewContext(version, buildDate, runID)
}

// GetVersion implements BuildInfo.GetVersion
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate implements BuildInfo.GetBuildDate
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// GetRunID implements BuildInfo.GetRunID
func (c *Context) GetRunID() string {
	if c == nil || c.RunID == "" {
		return UnknownValue
	}
	return c.RunID
}

// Release is the release name reported to error tracking.
func (c *Context) Release() string {
	return "qcline@" + c.GetVersion()
}
