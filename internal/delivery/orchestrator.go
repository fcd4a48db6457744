// Package delivery executes one batch download over a mixed-provenance
// selection of assets. Directly hosted assets are fetched strictly
// sequentially with pacing between items; provider-hosted assets are never
// auto-fetched — each gets an explicit per-item trigger the user invokes.
// One item's failure never aborts the rest of the batch.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/text/unicode/norm"

	"galleryflow/internal/asset"
	"galleryflow/internal/notify"
)

// ErrBatchRunning is returned when Run is called while a batch is already
// in flight. The trigger surface is expected to disable itself while a
// batch runs; this guard backstops it.
var ErrBatchRunning = errors.New("delivery: batch already running")

// defaultPacing is the inter-item delay on the direct path. Rapid-fire
// sequential downloads get silently discarded by some delivery targets, so
// the pacing requirement is load-bearing even though the exact value is not.
const defaultPacing = 1 * time.Second

// advisoryMessage is emitted once per batch that contains provider items.
const advisoryMessage = "provider items are delivered one per click; use each item's download action"

// FetchError reports a failed byte retrieval for one direct-provenance item.
type FetchError struct {
	Name       string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("delivery: fetching %q: HTTP %d", e.Name, e.StatusCode)
	}

	return fmt.Sprintf("delivery: fetching %q: %v", e.Name, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Trigger is the manual per-item action rendered for one provider-hosted
// asset. Open performs the actual retrieval when the user invokes it;
// the orchestrator never calls it.
type Trigger struct {
	Asset asset.Asset
	Open  func(ctx context.Context) error
}

// Result is the outcome of one batch. For the direct path,
// len(Succeeded)+len(Failed) equals the number of direct jobs; the provider
// path guarantees a rendered trigger per item, not a completed retrieval.
type Result struct {
	Succeeded []asset.Asset
	Failed    []asset.Asset
	Triggers  []Trigger
}

// Config carries the orchestrator settings.
type Config struct {
	// OutDir is where fetched files are written.
	OutDir string
	// Pacing is the inter-item delay on the direct path. Zero means the
	// default one second.
	Pacing time.Duration
}

// Orchestrator runs batch downloads. A single Orchestrator serves one
// selection surface; batches do not overlap.
type Orchestrator struct {
	httpClient *http.Client
	sink       notify.Sink
	logger     *slog.Logger
	outDir     string
	pacing     time.Duration

	running atomic.Bool

	// sleepFunc is called for inter-item pacing. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// New creates an Orchestrator.
func New(cfg Config, httpClient *http.Client, sink notify.Sink, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	pacing := cfg.Pacing
	if pacing == 0 {
		pacing = defaultPacing
	}

	return &Orchestrator{
		httpClient: httpClient,
		sink:       sink,
		logger:     logger,
		outDir:     cfg.OutDir,
		pacing:     pacing,
		sleepFunc:  timeSleep,
	}
}

// Run executes one batch over the given assets, in selection order.
// Returns ErrBatchRunning if a batch is already in flight. Context
// cancellation stops the direct loop between items; items already attempted
// keep their recorded outcome.
func (o *Orchestrator) Run(ctx context.Context, assets []asset.Asset) (*Result, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrBatchRunning
	}
	defer o.running.Store(false)

	providerJobs, directJobs := partition(assets)

	o.logger.Info("batch starting",
		slog.Int("provider_jobs", len(providerJobs)),
		slog.Int("direct_jobs", len(directJobs)),
	)

	result := &Result{}

	if len(providerJobs) > 0 {
		o.sink.Notify(notify.Event{
			Kind:    notify.KindAdvisory,
			Message: advisoryMessage,
		})

		for _, a := range providerJobs {
			result.Triggers = append(result.Triggers, o.makeTrigger(a))
		}
	}

	if err := o.runDirect(ctx, directJobs, result); err != nil {
		return result, err
	}

	o.logger.Info("batch complete",
		slog.Int("succeeded", len(result.Succeeded)),
		slog.Int("failed", len(result.Failed)),
		slog.Int("triggers", len(result.Triggers)),
	)

	return result, nil
}

// runDirect processes direct-provenance jobs strictly sequentially. Ordering
// and pacing are hard requirements here, not optimizations — concurrent or
// rapid-fire synthetic downloads are unreliable at the delivery target.
func (o *Orchestrator) runDirect(ctx context.Context, jobs []asset.Asset, result *Result) error {
	for i, a := range jobs {
		if err := o.fetchToFile(ctx, a); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("delivery: batch canceled: %w", ctx.Err())
			}

			o.logger.Warn("direct download failed, continuing batch",
				slog.String("name", a.Name),
				slog.String("error", err.Error()),
			)

			o.sink.Notify(notify.Event{
				Kind:     notify.KindError,
				Message:  "download failed",
				ItemName: a.Name,
			})

			result.Failed = append(result.Failed, a)
		} else {
			result.Succeeded = append(result.Succeeded, a)
		}

		// Pace between items, not after the last one.
		if i < len(jobs)-1 {
			if err := o.sleepFunc(ctx, o.pacing); err != nil {
				return fmt.Errorf("delivery: batch canceled: %w", err)
			}
		}
	}

	return nil
}

// makeTrigger builds the manual action for one provider job. The returned
// Open fetches the provider URL into the output directory when invoked.
func (o *Orchestrator) makeTrigger(a asset.Asset) Trigger {
	return Trigger{
		Asset: a,
		Open: func(ctx context.Context) error {
			if err := o.fetchToFile(ctx, a); err != nil {
				o.sink.Notify(notify.Event{
					Kind:     notify.KindError,
					Message:  "download failed",
					ItemName: a.Name,
				})

				return err
			}

			return nil
		},
	}
}

// fetchToFile retrieves the asset's bytes and writes them to the output
// directory under a collision-safe filename. The temp-then-rename dance
// keeps half-written files out of the output directory.
func (o *Orchestrator) fetchToFile(ctx context.Context, a asset.Asset) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, http.NoBody)
	if err != nil {
		return &FetchError{Name: a.Name, Err: err}
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return &FetchError{Name: a.Name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)

		return &FetchError{Name: a.Name, StatusCode: resp.StatusCode}
	}

	dest, err := o.uniquePath(a.Name)
	if err != nil {
		return &FetchError{Name: a.Name, Err: err}
	}

	tmp, err := os.CreateTemp(o.outDir, ".galleryflow-*")
	if err != nil {
		return &FetchError{Name: a.Name, Err: err}
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return &FetchError{Name: a.Name, Err: err}
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return &FetchError{Name: a.Name, Err: err}
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())

		return &FetchError{Name: a.Name, Err: err}
	}

	o.logger.Debug("wrote downloaded file",
		slog.String("name", a.Name),
		slog.String("path", dest),
	)

	return nil
}

// uniquePath returns a destination path for the given display name that does
// not collide with existing files. Names are NFC-normalized and stripped of
// path separators before use.
func (o *Orchestrator) uniquePath(name string) (string, error) {
	base := sanitizeName(name)

	dest := filepath.Join(o.outDir, base)
	if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
		return dest, nil
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for i := 1; ; i++ {
		dest = filepath.Join(o.outDir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
			return dest, nil
		}

		if i > 10000 {
			return "", fmt.Errorf("delivery: no free filename for %q", name)
		}
	}
}

// sanitizeName NFC-normalizes a display name and removes path separators so
// it is safe as a single filename component.
func sanitizeName(name string) string {
	base := norm.NFC.String(name)
	base = strings.ReplaceAll(base, "/", "_")
	base = strings.ReplaceAll(base, string(filepath.Separator), "_")

	if base == "" || base == "." || base == ".." {
		base = "download"
	}

	return base
}

// partition splits assets by provenance, preserving selection order within
// each class.
func partition(assets []asset.Asset) (providerJobs, directJobs []asset.Asset) {
	for _, a := range assets {
		if a.Provenance == asset.ProvenanceProvider {
			providerJobs = append(providerJobs, a)
		} else {
			directJobs = append(directJobs, a)
		}
	}

	return providerJobs, directJobs
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Orchestrator; the timer is stopped on
// cancellation so no callback dangles past the batch.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
