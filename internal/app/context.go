package app

import (
	"github.com/tphakala/parrot-tester/internal/buildinfo"
	"github.com/tphakala/parrot-tester/internal/conf"
	"github.com/tphakala/parrot-tester/internal/logger"
)

// Context carries what every command needs. The root command fills in
// Settings and Logger before a subcommand runs.
type Context struct {
	Build      *buildinfo.Context
	ConfigFile string
	Settings   *conf.Settings
	Logger     *logger.CentralLogger
}

// Log returns the application logger, or a discarding logger before setup.
func (c *Context) Log() logger.Logger {
	if c.Logger == nil {
		return logger.NewDiscard()
	}
	return c.Logger.Module("parrot")
}
