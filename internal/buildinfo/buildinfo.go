// Package buildinfo holds build-time metadata injected at startup.
package buildinfo

import (
	"fmt"
	"runtime"
)

// UnknownValue is reported for metadata the build did not set.
const UnknownValue = "unknown"

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	version   string
	commit    string
	buildDate string
}

// NewContext creates a build context. Empty values report UnknownValue.
func NewContext(version, commit, buildDate string) *Context {
	return &Context{version: version, commit: commit, buildDate: buildDate}
}

// Version returns the release version.
func (c *Context) Version() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.version)
}

// Commit returns the source revision.
func (c *Context) Commit() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.commit)
}

// BuildDate returns the time the binary was built.
func (c *Context) BuildDate() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.buildDate)
}

// String renders a one-line version banner.
func (c *Context) String() string {
	return fmt.Sprintf("parrot-tester %s (commit %s, built %s, %s %s/%s)",
		c.Version(), c.Commit(), c.BuildDate(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownValue
	}
	return s
}
