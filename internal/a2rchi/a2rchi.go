// Package a2rchi is the central façade tying a VectorStoreManager
// connector to a registry of named pipelines: it fetches a fresh
// collection handle on every invocation, hands it to the active
// pipeline's UpdateRetriever, then runs Invoke. Facade takes no lock of
// its own: concurrent Invoke calls each call UpdateRetriever on the same
// active pipeline value.
package a2rchi

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/pipeline"
	"github.com/a2rchi/a2rchi/internal/vstoremgr"
)

// ErrPipeline wraps any error a pipeline invocation produces.
var ErrPipeline = errors.New("pipeline error")

// ErrUnknownPipeline is returned by Update when asked to activate a
// pipeline name absent from the registry.
var ErrUnknownPipeline = errors.New("unknown pipeline")

// StreamingPipeline is implemented by a Pipeline that can stream its
// answer incrementally. None of the classic pipelines (QA, Grading,
// ImageProcessing) implement it; Facade.Stream reports ErrNoStream for
// any pipeline that doesn't type-assert to this.
type StreamingPipeline interface {
	pipeline.Pipeline
	Stream(ctx context.Context, in pipeline.Input) (<-chan pipeline.Output, error)
}

// ErrNoStream is returned by Stream when the active pipeline doesn't
// implement StreamingPipeline.
var ErrNoStream = errors.New("a2rchi: active pipeline does not support streaming")

// Facade is the top-level entry point a chat or grading surface calls
// through: it owns a registry of named pipelines, the name of the
// currently active one, and the connector that materialises a fresh
// vector collection handle for each invocation.
type Facade struct {
	connector *vstoremgr.Connector

	pipelines  map[string]pipeline.Pipeline
	activeName string
	active     pipeline.Pipeline

	logger *logging.Logger
}

// New builds a Facade. pipelines must contain at least activeName;
// connector is shared with the scheduler/collector side and never
// rediscovered.
func New(connector *vstoremgr.Connector, pipelines map[string]pipeline.Pipeline, activeName string, logger *logging.Logger) (*Facade, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	f := &Facade{
		connector: connector,
		pipelines: pipelines,
		logger:    logger,
	}
	if err := f.Update(activeName); err != nil {
		return nil, err
	}
	return f, nil
}

// Update swaps the active pipeline to name, looking it up in the
// registry. It does not reload configuration -- in this module,
// configuration is loaded once at process start by cmd/a2rchictl and
// handed down, rather than re-read per call as the original's
// config_name-driven reload does.
func (f *Facade) Update(name string) error {
	p, ok := f.pipelines[name]
	if !ok {
		return fmt.Errorf("a2rchi: %w: %q", ErrUnknownPipeline, name)
	}
	f.activeName = name
	f.active = p
	return nil
}

// ActiveName returns the name of the currently active pipeline.
func (f *Facade) ActiveName() string { return f.activeName }

// Invoke fetches a fresh collection handle, refreshes the active
// pipeline's retriever against it, and runs the pipeline. Errors from
// either step are wrapped in ErrPipeline.
func (f *Facade) Invoke(ctx context.Context, in pipeline.Input) (pipeline.Output, error) {
	collection, err := f.connector.FetchCollection(ctx)
	if err != nil {
		return pipeline.Output{}, withStatus(fmt.Errorf("a2rchi: %w: fetching collection: %v", ErrPipeline, err), 500)
	}

	f.active.UpdateRetriever(collection)

	out, err := f.active.Invoke(ctx, in)
	if err != nil {
		f.logger.Error(ctx, "pipeline invocation failed", zap.String("pipeline", f.activeName), zap.Error(err))
		return pipeline.Output{}, withStatus(fmt.Errorf("a2rchi: %w: %v", ErrPipeline, err), 500)
	}
	return out, nil
}

// InvokeNamed runs a specific pipeline by registry name without
// disturbing the active pipeline, so a chat surface and a grading
// surface can share one Facade concurrently without one's requests
// mutating the other's idea of "active".
func (f *Facade) InvokeNamed(ctx context.Context, name string, in pipeline.Input) (pipeline.Output, error) {
	p, ok := f.pipelines[name]
	if !ok {
		return pipeline.Output{}, fmt.Errorf("a2rchi: %w: %q", ErrUnknownPipeline, name)
	}

	collection, err := f.connector.FetchCollection(ctx)
	if err != nil {
		return pipeline.Output{}, withStatus(fmt.Errorf("a2rchi: %w: fetching collection: %v", ErrPipeline, err), 500)
	}
	p.UpdateRetriever(collection)

	out, err := p.Invoke(ctx, in)
	if err != nil {
		f.logger.Error(ctx, "pipeline invocation failed", zap.String("pipeline", name), zap.Error(err))
		return pipeline.Output{}, withStatus(fmt.Errorf("a2rchi: %w: %v", ErrPipeline, err), 500)
	}
	return out, nil
}

// Stream fetches a fresh collection handle and streams the active
// pipeline's answer, if it supports streaming.
func (f *Facade) Stream(ctx context.Context, in pipeline.Input) (<-chan pipeline.Output, error) {
	streaming, ok := f.active.(StreamingPipeline)
	if !ok {
		return nil, fmt.Errorf("a2rchi: pipeline %q: %w", f.activeName, ErrNoStream)
	}

	collection, err := f.connector.FetchCollection(ctx)
	if err != nil {
		return nil, withStatus(fmt.Errorf("a2rchi: %w: fetching collection: %v", ErrPipeline, err), 500)
	}
	streaming.UpdateRetriever(collection)

	return streaming.Stream(ctx, in)
}
