package orchestrator

import (
	"errors"
	"fmt"

	"asistan/internal/postprocess"
	"asistan/internal/residency"
)

// User-facing fallback texts. They are what the user sees whenever a call
// fails; the classified error travels in Result.Err.
const (
	FallbackGeneric   = postprocess.DefaultFallback
	FallbackModelLoad = "Şu anda modele ulaşamıyorum. Biraz sonra tekrar dene."
	FallbackVision    = "Üzgünüm, bu resmi analiz edemedim. Daha net bir resim dene ya da sorunu değiştir."
	FallbackSpeech    = "Sesini anlayamadım. Lütfen tekrar dene."
)

var (
	// ErrEmptyPrompt is returned for blank input.
	ErrEmptyPrompt = errors.New("empty prompt")
	// ErrSpeechDisabled is returned when no speech collaborator is configured.
	ErrSpeechDisabled = errors.New("speech disabled")
)

// BackendCallError reports that a model was invoked and the call failed,
// timed out, or returned something unusable.
type BackendCallError struct {
	Op    string
	Class residency.Class
	Model string
	Err   error
}

func (e *BackendCallError) Error() string {
	return fmt.Sprintf("%s: %s model %q: %v", e.Op, e.Class, e.Model, e.Err)
}

func (e *BackendCallError) Unwrap() error { return e.Err }

// EmptyResponseError reports degenerate output that survived every retry.
type EmptyResponseError struct {
	Op       string
	Class    residency.Class
	Model    string
	Attempts int
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("%s: %s model %q returned empty output after %d attempt(s)", e.Op, e.Class, e.Model, e.Attempts)
}

// IsBackendCall reports whether err is a BackendCallError.
func IsBackendCall(err error) bool {
	var e *BackendCallError
	return errors.As(err, &e)
}

// IsEmptyResponse reports whether err is an EmptyResponseError.
func IsEmptyResponse(err error) bool {
	var e *EmptyResponseError
	return errors.As(err, &e)
}

// fallbackFor picks the user text for a failure.
func fallbackFor(err error, def string) string {
	if residency.IsModelLoad(err) {
		return FallbackModelLoad
	}
	return def
}
