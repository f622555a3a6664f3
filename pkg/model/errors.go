package model

import "github.com/m-mizutani/goerr/v2"

// Error kinds. Every error crossing a tool boundary carries one of these tags
// so that callers can tell a bad request from a missing target or a broken
// provider without string matching.
var (
	ErrTagParse       = goerr.NewTag("parse")
	ErrTagUnsupported = goerr.NewTag("unsupported_operation")
	ErrTagNotFound    = goerr.NewTag("not_found")
	ErrTagValidation  = goerr.NewTag("validation")
	ErrTagProvider    = goerr.NewTag("provider")
)
