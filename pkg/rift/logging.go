package rift

import (
	"log"
	"os"
)

// defaultLogger is used by components constructed without an explicit
// logger. It is the one narrow exception to avoiding global mutable
// state — a default value, not a singleton tracker or USB context.
var defaultLogger = log.New(os.Stderr, "[rift] ", log.LstdFlags|log.Lmicroseconds)
