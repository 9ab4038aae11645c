package models

import "errors"

// Generation error taxonomy. Callers match with errors.Is; producers wrap
// these with context via fmt.Errorf("%w: ...").
var (
	ErrInvalidDate            = errors.New("invalid date")
	ErrNarratorNotFound       = errors.New("narrator not found")
	ErrNoDefaultNarrator      = errors.New("no default narrator configured")
	ErrNarratorInvalid        = errors.New("invalid narrator")
	ErrNarratorNameTaken      = errors.New("narrator name already exists")
	ErrScriptGenerationFailed = errors.New("script generation failed")
	ErrTTSServerUnavailable   = errors.New("TTS server failed to respond")
	ErrSynthesisTimeout       = errors.New("timed out waiting for synthesized file")
	ErrClipPersistence        = errors.New("failed to persist clip")
	ErrClipNotFound           = errors.New("clip not found")
	ErrSampleNotFound         = errors.New("sample not found")
	ErrJobNotFound            = errors.New("job not found")
)
