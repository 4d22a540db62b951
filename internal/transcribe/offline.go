package transcribe

import "errors"

// WhisperCppConfig configures the offline recognizer.
type WhisperCppConfig struct {
	ModelPath string // ggml model file, e.g. ggml-base.en.bin
	Language  string // "en", or "auto" for detection on multilingual models
	Threads   uint   // 0 = library default
}

// ErrOfflineUnavailable is returned when the binary was built without the
// whispercpp tag and so has no offline recognizer linked in.
var ErrOfflineUnavailable = errors.New("offline recognizer not compiled in; rebuild with -tags whispercpp")
