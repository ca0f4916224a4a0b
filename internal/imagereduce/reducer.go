// Package imagereduce shrinks a captured image before upload.
//
// The reducer is a bounded state machine: it inspects the source size, picks
// a byte budget and a starting width/quality from size tiers, then runs at
// most MaxPasses resize+recompress passes, decaying width and quality
// geometrically between passes. The codec is injected as a Transform so the
// loop can be exercised without decoding real images.
package imagereduce

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/fpang/medassist/internal/apierr"
)

// Size thresholds and schedule constants.
const (
	KiB = 1024
	MiB = 1024 * KiB

	// SmallFileThreshold is the size under which images are returned untouched.
	SmallFileThreshold = 100 * KiB

	MaxPasses    = 3
	DecayFactor  = 0.75
	MinQuality   = 0.2
	MinWidth     = 100
	largeTarget  = 500 * KiB
	normalTarget = 800 * KiB
)

// Artifact is a local image file and its size in bytes.
type Artifact struct {
	Path string
	Size int64
}

// Params are the settings for one resize+recompress pass.
type Params struct {
	Width   int     // maximum output width in pixels; never upscales
	Quality float64 // compression quality in (0, 1]
}

// Transform writes a resized, recompressed copy of src and returns its path.
// It must not modify src.
type Transform func(ctx context.Context, src string, p Params) (string, error)

// Pass records one transform pass.
type Pass struct {
	Params Params
	Size   int64
	Kept   bool // false when the output was larger than its input and discarded
}

// Outcome is the reducer's result. Artifact is the smallest file produced, or
// the source itself when no pass ran or none helped.
type Outcome struct {
	Artifact Artifact
	Original Artifact
	Target   int64
	Passes   []Pass
}

// Reduced reports whether the final artifact differs from the source.
func (o Outcome) Reduced() bool {
	return o.Artifact.Path != o.Original.Path
}

// WithinTarget reports whether the final artifact meets the byte budget.
func (o Outcome) WithinTarget() bool {
	return o.Artifact.Size <= o.Target
}

// Reducer runs the shrink loop with a given codec.
type Reducer struct {
	transform Transform
}

// New creates a Reducer that uses transform for each pass.
func New(transform Transform) *Reducer {
	return &Reducer{transform: transform}
}

// TargetFor returns the byte budget for an original of the given size.
func TargetFor(size int64) int64 {
	if size > 5*MiB {
		return largeTarget
	}
	return normalTarget
}

// InitialParams returns the first pass settings for an original of the given
// size. Larger originals start narrower and at lower quality.
func InitialParams(size int64) Params {
	switch {
	case size > 5*MiB:
		return Params{Width: 1024, Quality: 0.6}
	case size > 2*MiB:
		return Params{Width: 1280, Quality: 0.7}
	case size > 500*KiB:
		return Params{Width: 1600, Quality: 0.8}
	default:
		return Params{Width: 1920, Quality: 0.85}
	}
}

// Decay returns the settings for the pass after p.
func Decay(p Params) Params {
	next := Params{
		Width:   int(float64(p.Width) * DecayFactor),
		Quality: p.Quality * DecayFactor,
	}
	if next.Width < MinWidth {
		next.Width = MinWidth
	}
	if next.Quality < MinQuality {
		next.Quality = MinQuality
	}
	return next
}

type phase int

const (
	phaseInspect phase = iota
	phaseTransform
	phaseDone
)

// machine holds the reducer's state between steps.
type machine struct {
	phase   phase
	attempt int
	params  Params
	current Artifact
	outcome Outcome
}

// Reduce shrinks the image at path. Failures are always image-processing
// errors; exceeding the budget after the last pass is not a failure.
func (r *Reducer) Reduce(ctx context.Context, path string) (out Outcome, apiErr *apierr.Error) {
	m := &machine{current: Artifact{Path: path}}
	m.outcome.Original.Path = path
	defer func() {
		if rec := recover(); rec != nil {
			m.cleanup()
			out = Outcome{}
			apiErr = apierr.ImageProcessing(fmt.Errorf("reducer panic: %v", rec))
		}
	}()

	for m.phase != phaseDone {
		if err := r.step(ctx, m); err != nil {
			m.cleanup()
			log.Warn().Err(err).Str("path", path).Int("attempt", m.attempt).Msg("Image reduction failed")
			return Outcome{}, apierr.ImageProcessing(err)
		}
	}

	m.outcome.Artifact = m.current
	log.Debug().
		Str("path", path).
		Int64("original_size", m.outcome.Original.Size).
		Int64("final_size", m.current.Size).
		Int64("target", m.outcome.Target).
		Int("passes", len(m.outcome.Passes)).
		Msg("Image reduction complete")
	return m.outcome, nil
}

func (r *Reducer) step(ctx context.Context, m *machine) error {
	switch m.phase {
	case phaseInspect:
		size, err := fileSize(m.current.Path)
		if err != nil {
			return err
		}
		m.current.Size = size
		m.outcome.Original = m.current
		m.outcome.Target = TargetFor(size)
		if size < SmallFileThreshold {
			m.phase = phaseDone
			return nil
		}
		m.params = InitialParams(size)
		m.phase = phaseTransform
		return nil

	case phaseTransform:
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.transform == nil {
			return errors.New("no image transform configured")
		}
		m.attempt++
		outPath, err := r.transform(ctx, m.current.Path, m.params)
		if err != nil {
			return fmt.Errorf("pass %d: %w", m.attempt, err)
		}
		size, err := fileSize(outPath)
		if err != nil {
			return fmt.Errorf("pass %d output: %w", m.attempt, err)
		}

		pass := Pass{Params: m.params, Size: size}
		if size > m.current.Size {
			// Never let the artifact grow; stop with what we have.
			m.discard(outPath)
			m.outcome.Passes = append(m.outcome.Passes, pass)
			m.phase = phaseDone
			return nil
		}
		pass.Kept = true
		m.outcome.Passes = append(m.outcome.Passes, pass)
		m.discard(m.current.Path)
		m.current = Artifact{Path: outPath, Size: size}

		if size <= m.outcome.Target || m.attempt >= MaxPasses {
			m.phase = phaseDone
			return nil
		}
		m.params = Decay(m.params)
		return nil
	}
	return nil
}

// discard removes an intermediate file. The source is never removed.
func (m *machine) discard(path string) {
	if path == "" || path == m.outcome.Original.Path {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Debug().Err(err).Str("path", path).Msg("Failed to remove intermediate image")
	}
}

func (m *machine) cleanup() {
	m.discard(m.current.Path)
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat image: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", path)
	}
	return info.Size(), nil
}
