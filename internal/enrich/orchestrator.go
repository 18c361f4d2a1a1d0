package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/videointel/internal/domain"
)

// Defaults for Config fields left at zero.
const (
	DefaultConcurrency = 4
	DefaultCallTimeout = 60 * time.Second
	DefaultRetryBase   = 500 * time.Millisecond
	maxRetryInterval   = 10 * time.Second
)

// Config bounds the orchestrator's resource use.
type Config struct {
	// Concurrency is the number of shots enriched at once.
	Concurrency int
	// CallTimeout bounds one model call, including its retries' individual
	// attempts but not the backoff between them.
	CallTimeout time.Duration
	// MaxRetries is the number of extra attempts after a transient failure.
	MaxRetries int
	RetryBase  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// Outcome is the final state of one modality on one shot: exactly one of
// Result and Err is set.
type Outcome struct {
	Result   *Result
	Err      *EnrichmentError
	Attempts int
}

// ShotEnrichment maps each enabled modality to its outcome for one shot.
type ShotEnrichment map[domain.Modality]Outcome

// ModalityStats aggregates calls for one modality across a job.
type ModalityStats struct {
	Calls    int
	Failures int
	Retries  int
	Latency  time.Duration
}

// Stats is keyed by modality.
type Stats map[domain.Modality]*ModalityStats

// Orchestrator drives every enabled Enricher over every shot.
type Orchestrator struct {
	enrichers []Enricher
	cfg       Config
}

// NewOrchestrator returns an orchestrator over enrichers. Each modality may
// appear at most once.
func NewOrchestrator(enrichers []Enricher, cfg Config) (*Orchestrator, error) {
	seen := make(map[domain.Modality]bool, len(enrichers))
	for _, e := range enrichers {
		if seen[e.Modality()] {
			return nil, fmt.Errorf("duplicate enricher for modality %s", e.Modality())
		}
		seen[e.Modality()] = true
	}
	return &Orchestrator{enrichers: enrichers, cfg: cfg.withDefaults()}, nil
}

// Modalities returns the enabled modalities in registration order.
func (o *Orchestrator) Modalities() []domain.Modality {
	out := make([]domain.Modality, len(o.enrichers))
	for i, e := range o.enrichers {
		out[i] = e.Modality()
	}
	return out
}

// Models maps each enabled modality to its model identifier.
func (o *Orchestrator) Models() map[domain.Modality]string {
	out := make(map[domain.Modality]string, len(o.enrichers))
	for _, e := range o.enrichers {
		out[e.Modality()] = e.Model()
	}
	return out
}

type completion struct {
	shotID   string
	modality domain.Modality
	outcome  Outcome
	elapsed  time.Duration
}

// Run enriches every shot and returns one ShotEnrichment per shot ID. Model
// failures never surface as an error here; they are recorded in the
// outcomes. The only error is ctx's, when the job is cancelled.
func (o *Orchestrator) Run(ctx context.Context, shots []domain.Shot, opts Options) (map[string]ShotEnrichment, Stats, error) {
	out := make(map[string]ShotEnrichment, len(shots))
	stats := make(Stats, len(o.enrichers))
	for _, e := range o.enrichers {
		stats[e.Modality()] = &ModalityStats{}
	}
	if len(o.enrichers) == 0 {
		for _, sh := range shots {
			out[sh.ID] = ShotEnrichment{}
		}
		return out, stats, ctx.Err()
	}

	results := make(chan completion)
	done := make(chan struct{})

	// Single writer: only this goroutine touches out and stats.
	go func() {
		defer close(done)
		for c := range results {
			se, ok := out[c.shotID]
			if !ok {
				se = make(ShotEnrichment, len(o.enrichers))
				out[c.shotID] = se
			}
			se[c.modality] = c.outcome

			st := stats[c.modality]
			st.Calls++
			st.Latency += c.elapsed
			if c.outcome.Attempts > 1 {
				st.Retries += c.outcome.Attempts - 1
			}
			if c.outcome.Err != nil {
				st.Failures++
			}
		}
	}()

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for _, sh := range shots {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o.enrichShot(ctx, sh, opts, results)
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-done

	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}
	return out, stats, nil
}

// enrichShot runs every modality for one shot concurrently.
func (o *Orchestrator) enrichShot(ctx context.Context, sh domain.Shot, opts Options, results chan<- completion) {
	kf := Keyframe{ShotID: sh.ID, Path: sh.Keyframe}

	var wg sync.WaitGroup
	for _, e := range o.enrichers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			outcome := o.invoke(ctx, e, kf, opts)
			if ctx.Err() != nil {
				return
			}
			if outcome.Err != nil {
				log.Warn().
					Str("shotId", sh.ID).
					Str("modality", string(e.Modality())).
					Str("reason", string(outcome.Err.Reason)).
					Int("attempts", outcome.Attempts).
					Err(outcome.Err.Err).
					Msg("Enrichment unavailable")
			}
			results <- completion{shotID: sh.ID, modality: e.Modality(), outcome: outcome, elapsed: time.Since(start)}
		}()
	}
	wg.Wait()
}

// invoke calls one enricher with per-attempt timeouts and bounded
// exponential backoff on transient failures.
func (o *Orchestrator) invoke(ctx context.Context, e Enricher, kf Keyframe, opts Options) Outcome {
	if kf.Path == "" {
		ee := DecodeError(fmt.Errorf("shot %s has no keyframe", kf.ShotID))
		ee.Modality = e.Modality()
		return Outcome{Err: ee}
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.cfg.RetryBase
	eb.MaxInterval = maxRetryInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(o.cfg.MaxRetries)), ctx)

	var (
		res      Result
		attempts int
		last     *EnrichmentError
	)
	op := func() error {
		attempts++
		r, err := o.call(ctx, e, kf, opts)
		if err == nil {
			res = r
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		last = classify(e.Modality(), err)
		if !last.Transient {
			return backoff.Permanent(last)
		}
		return last
	}

	if err := backoff.Retry(op, policy); err != nil {
		if last == nil || errors.Is(err, context.Canceled) {
			last = &EnrichmentError{Modality: e.Modality(), Reason: ReasonModelError, Err: err}
		}
		return Outcome{Err: last, Attempts: attempts}
	}
	return Outcome{Result: &res, Attempts: attempts}
}

type inferReply struct {
	res Result
	err error
}

// call runs one attempt. The enricher is abandoned when the attempt's
// deadline passes, whether or not it honours ctx.
func (o *Orchestrator) call(ctx context.Context, e Enricher, kf Keyframe, opts Options) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	reply := make(chan inferReply, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				reply <- inferReply{err: ModelError(fmt.Errorf("enricher panicked: %v", p), false)}
			}
		}()
		r, err := e.Infer(callCtx, kf, opts)
		reply <- inferReply{res: r, err: err}
	}()

	select {
	case r := <-reply:
		return r.res, r.err
	case <-callCtx.Done():
		return Result{}, callCtx.Err()
	}
}
