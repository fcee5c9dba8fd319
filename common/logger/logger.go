// Package logger holds the process-wide structured logger used outside of
// request handlers. Request-scoped logging goes through gmw.GetLogger.
package logger

import (
	"fmt"
	"os"

	glog "github.com/Laisky/go-utils/v6/log"

	"github.com/twinmcp/gateway/common/config"
)

// Logger is the shared process logger.
var Logger glog.Logger

func init() {
	level := glog.LevelInfo
	if config.DebugEnabled {
		level = glog.LevelDebug
	}

	var err error
	Logger, err = glog.NewConsoleWithName("gateway", level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %+v\n", err)
		os.Exit(1)
	}
}
