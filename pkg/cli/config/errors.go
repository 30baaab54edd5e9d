package config

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for configuration validation
var (
	ErrInvalidLogLevel     = goerr.New("invalid log level")
	ErrInvalidLogFormat    = goerr.New("invalid log format")
	ErrInvalidStoreBackend = goerr.New("invalid store backend")
	ErrInvalidVectorConfig = goerr.New("invalid vector search configuration")
	ErrInvalidConversation = goerr.New("invalid conversation configuration")
)
