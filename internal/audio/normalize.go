package audio

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
)

// InputError is a client mistake detected before any provider is contacted.
// Message is safe to return to the caller verbatim.
type InputError struct {
	Kind    string
	Message string
}

func (e *InputError) Error() string { return e.Message }

var (
	ErrNoAudio           = &InputError{Kind: "no_audio", Message: "No audio data provided"}
	ErrEmptyFilename     = &InputError{Kind: "empty_filename", Message: "No selected file"}
	ErrUnsupportedFormat = &InputError{Kind: "unsupported_format", Message: "File type not allowed"}
	ErrInvalidBase64     = &InputError{Kind: "invalid_base64", Message: "Invalid base64 audio data"}
	ErrTooLarge          = &InputError{Kind: "too_large", Message: "Audio payload too large"}
)

// AsInputError unwraps err to an *InputError if it is one.
func AsInputError(err error) (*InputError, bool) {
	var ie *InputError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// Source identifies which request shape carried the audio.
type Source int

const (
	SourceFile Source = iota
	SourceBase64
)

func (s Source) String() string {
	if s == SourceBase64 {
		return "base64"
	}
	return "file"
}

// Upload is the single audio payload extracted from a request.
type Upload struct {
	Source   Source
	Filename string // sanitized; synthesized for base64 payloads
	Format   string // an extension accepted by IsAllowed
	Data     []byte
}

const (
	fileField  = "file"
	audioField = "audio"

	// multipartMemory is how much of a multipart body is held in memory
	// before spilling to disk; the body itself is capped by maxBytes.
	multipartMemory = 32 << 20
)

// Normalizer turns an HTTP request into an Upload.
type Normalizer struct {
	maxBytes int64
	log      zerolog.Logger
}

// NewNormalizer creates a normalizer that rejects bodies above maxBytes.
func NewNormalizer(maxBytes int64, log zerolog.Logger) *Normalizer {
	return &Normalizer{
		maxBytes: maxBytes,
		log:      log,
	}
}

// Normalize extracts the audio payload from r. A multipart body must carry a
// "file" part; any other body is read as JSON with an "audio" field.
// Returned errors are *InputError for client mistakes.
func (n *Normalizer) Normalize(r *http.Request) (*Upload, error) {
	if n.maxBytes > 0 {
		r.Body = http.MaxBytesReader(nil, r.Body, n.maxBytes)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return n.fromMultipart(r)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		if isTooLarge(err) {
			return nil, ErrTooLarge
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	return n.FromJSON(body)
}

func (n *Normalizer) fromMultipart(r *http.Request) (*Upload, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			return nil, ErrTooLarge
		}
		return nil, fmt.Errorf("%w: %v", ErrNoAudio, err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(fileField)
	if err != nil {
		// A part named "file" with an empty filename is parsed as a plain value.
		if _, ok := r.MultipartForm.Value[fileField]; ok {
			return nil, ErrEmptyFilename
		}
		return nil, ErrNoAudio
	}
	defer file.Close()

	return n.FromFile(header.Filename, file)
}

// FromFile validates a named upload and reads its bytes unchanged.
func (n *Normalizer) FromFile(filename string, rd io.Reader) (*Upload, error) {
	if filename == "" {
		return nil, ErrEmptyFilename
	}
	ext := ExtensionOf(filename)
	if !IsAllowed(ext) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	}

	safe := SanitizeFilename(filename)
	if safe == "" {
		safe = "upload." + ext
	}

	data, err := io.ReadAll(rd)
	if err != nil {
		if isTooLarge(err) {
			return nil, ErrTooLarge
		}
		return nil, fmt.Errorf("read upload: %w", err)
	}

	return &Upload{
		Source:   SourceFile,
		Filename: safe,
		Format:   ext,
		Data:     data,
	}, nil
}

// FromJSON reads {"audio": "<data url or base64>"} from body.
func (n *Normalizer) FromJSON(body []byte) (*Upload, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, ErrNoAudio
	}
	raw, ok := payload[audioField]
	if !ok {
		return nil, ErrNoAudio
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || strings.TrimSpace(s) == "" {
		return nil, ErrNoAudio
	}
	return n.FromBase64(s)
}

// FromBase64 decodes a data URL or bare base64 string.
func (n *Normalizer) FromBase64(s string) (*Upload, error) {
	format := FormatFromDataURL(s)
	if !strings.HasPrefix(s, "data:audio/") {
		n.log.Warn().Str("format", format).Msg("audio payload lacks data:audio/ prefix, decoding as raw base64")
	}

	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[i+1:]
	}

	data, err := decodeBase64(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}
	if len(data) == 0 {
		return nil, ErrNoAudio
	}

	return &Upload{
		Source:   SourceBase64,
		Filename: "audio." + format,
		Format:   format,
		Data:     data,
	}, nil
}

// decodeBase64 accepts padded or unpadded standard base64, ignoring whitespace.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(s); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
