package ai

import "github.com/rotisserie/eris"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = eris.New("ai quota exceeded")
