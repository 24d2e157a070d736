package build

import (
	"github.com/btcsuite/btclog/v2"
)

// NewSubLogger constructs a new subsystem logger. If no constructor closure
// is provided, logging for the subsystem stays disabled until the caller
// installs a logger via the package's UseLogger function. Library packages
// therefore produce no output by default.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	if genSubLogger != nil {
		return genSubLogger(subsystem)
	}

	return btclog.Disabled
}
