package srrkit

import "github.com/javi11/srrkit/internal/rerr"

// Error kinds from spec.md §7. Every FormatError wraps one of these, so
// callers can still use errors.Is against the kind.
var (
	ErrInvalidMagic     = rerr.ErrInvalidMagic
	ErrShortRead        = rerr.ErrShortRead
	ErrTruncatedBlock   = rerr.ErrTruncatedBlock
	ErrUnknownBlockType = rerr.ErrUnknownBlockType
	ErrMissingSource    = rerr.ErrMissingSource
	ErrSourceExhausted  = rerr.ErrSourceExhausted
	ErrNameMismatch     = rerr.ErrNameMismatch
	ErrSizeMismatch     = rerr.ErrSizeMismatch
	ErrCRCMismatch      = rerr.ErrCRCMismatch
	ErrEBMLMalformed    = rerr.ErrEBMLMalformed
	ErrUnsupportedLace  = rerr.ErrUnsupportedLace
)

// FormatError carries the byte offset and logical context of a parsing or
// reconstruction failure, per §7. The core never logs; every error is
// returned as a value, typically as (or wrapping) a *FormatError.
type FormatError = rerr.FormatError
