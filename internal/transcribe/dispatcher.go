package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/transcribe-api/internal/metrics"
)

// Result is the outcome of one dispatch. Exactly one of Text (OK) or
// Kind/Message (!OK) is meaningful. Message never carries the provider's
// raw error text; that is only logged.
type Result struct {
	OK      bool
	Text    string
	Kind    Kind
	Message string

	Provider string
	Model    string
	Attempts int
	Latency  time.Duration
}

// Event is published after every dispatch when a publisher is configured.
type Event struct {
	RequestID  string    `json:"request_id,omitempty"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	OK         bool      `json:"ok"`
	Kind       Kind      `json:"kind,omitempty"`
	TextLength int       `json:"text_length"`
	LatencyMS  int64     `json:"latency_ms"`
	Attempts   int       `json:"attempts"`
	Time       time.Time `json:"time"`
}

// EventPublisher receives dispatch events. Publish must not block for long.
type EventPublisher interface {
	Publish(ev Event)
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Provider    Provider
	Timeout     time.Duration // per attempt
	MaxAttempts int
	Backoff     time.Duration // initial retry interval
	Publisher   EventPublisher
	Log         zerolog.Logger
}

// Dispatcher sends stored audio to the configured provider and turns every
// outcome, including panics, into a Result.
type Dispatcher struct {
	provider    Provider
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	publisher   EventPublisher
	log         zerolog.Logger
}

// NewDispatcher creates a dispatcher. Zero timeout and attempts fall back to
// 60s and a single attempt.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	return &Dispatcher{
		provider:    opts.Provider,
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		publisher:   opts.Publisher,
		log:         opts.Log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch transcribes the file at audioPath. The provider call ignores ctx
// cancellation; each attempt is bounded by the configured timeout instead.
func (d *Dispatcher) Dispatch(ctx context.Context, audioPath string) Result {
	start := time.Now()
	base := context.WithoutCancel(ctx)
	log := zerolog.Ctx(ctx)
	if log.GetLevel() == zerolog.Disabled {
		log = &d.log
	}

	attempts := 0
	op := func() (*Response, error) {
		attempts++
		resp, err := d.attempt(base, audioPath)
		if err == nil {
			return resp, nil
		}
		if !KindOf(err).Retryable() {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.backoff

	resp, err := backoff.Retry(base, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(d.maxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).
				Int("attempt", attempts).
				Dur("retry_in", next).
				Msg("transcription attempt failed, retrying")
		}),
	)

	res := Result{
		Provider: d.provider.Name(),
		Model:    d.provider.Model(),
		Attempts: attempts,
		Latency:  time.Since(start),
	}
	if err != nil {
		res.Kind = KindOf(err)
		res.Message = clientMessage(res.Kind, err)
		log.Warn().Err(err).
			Str("provider", res.Provider).
			Str("kind", string(res.Kind)).
			Int("attempts", attempts).
			Dur("latency", res.Latency).
			Msg("transcription failed")
	} else {
		res.OK = true
		res.Text = strings.TrimSpace(resp.Text)
		log.Info().
			Str("provider", res.Provider).
			Str("model", res.Model).
			Int("text_len", len(res.Text)).
			Int("attempts", attempts).
			Dur("latency", res.Latency).
			Msg("transcription complete")
	}

	outcome := "ok"
	if !res.OK {
		outcome = string(res.Kind)
	}
	metrics.ObserveTranscription(res.Provider, outcome, attempts, res.Latency)
	d.publish(ctx, res)
	return res
}

// attempt makes one bounded provider call, converting a panic into an
// internal error.
func (d *Dispatcher) attempt(ctx context.Context, audioPath string) (resp *Response, err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			resp = nil
			err = newProviderError(d.provider.Name(), KindInternal, fmt.Errorf("provider panic: %v", rec))
		}
	}()

	resp, err = d.provider.Transcribe(ctx, audioPath)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			var pe *ProviderError
			if !errors.As(err, &pe) || pe.Kind != KindTimeout {
				err = newProviderError(d.provider.Name(), KindTimeout, err)
			}
		}
		return nil, err
	}
	if resp == nil {
		return nil, newProviderError(d.provider.Name(), KindInternal, errors.New("provider returned no response"))
	}
	return resp, nil
}

func (d *Dispatcher) publish(ctx context.Context, res Result) {
	if d.publisher == nil {
		return
	}
	d.publisher.Publish(Event{
		RequestID:  RequestIDFromContext(ctx),
		Provider:   res.Provider,
		Model:      res.Model,
		OK:         res.OK,
		Kind:       res.Kind,
		TextLength: len(res.Text),
		LatencyMS:  res.Latency.Milliseconds(),
		Attempts:   res.Attempts,
		Time:       time.Now(),
	})
}

type requestIDKey struct{}

// WithRequestID attaches a request id for event correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id set by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

var kindMessages = map[Kind]string{
	KindNetwork:     "could not reach the transcription provider",
	KindAuth:        "transcription provider rejected the credentials",
	KindRateLimit:   "transcription provider is rate limiting requests",
	KindUnavailable: "transcription provider is unavailable",
	KindTimeout:     "transcription timed out",
	KindAudio:       "transcription provider could not process the audio",
	KindInternal:    "internal server error",
}

// clientMessage is the caller-facing description of a failed dispatch.
func clientMessage(kind Kind, err error) string {
	if errors.Is(err, ErrUnrecognizedAudio) {
		return ErrUnrecognizedAudio.Error()
	}
	if msg, ok := kindMessages[kind]; ok {
		return msg
	}
	return "transcription failed"
}
