// Package runner wires the back service together: Docker engine, image
// manager, submission controller, and the bus consumers they serve.
package runner

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/schmitthub/forgeyard/internal/bus"
	"github.com/schmitthub/forgeyard/internal/config"
	"github.com/schmitthub/forgeyard/internal/engine"
	"github.com/schmitthub/forgeyard/internal/images"
	"github.com/schmitthub/forgeyard/internal/logger"
	"github.com/schmitthub/forgeyard/internal/sandbox"
	"github.com/schmitthub/forgeyard/internal/store"
	"github.com/schmitthub/forgeyard/internal/submit"
)

const shutdownTimeout = 15 * time.Second

// Runner owns the lifecycle of the back service.
type Runner struct {
	cfg config.Config

	engine     *engine.Engine
	store      *store.Store
	images     *images.Manager
	controller *submit.Controller
	conn       *amqp.Connection
	consumer   *bus.Consumer

	// uploadMu serializes template builds: concurrent builds against one
	// daemon thrash the layer cache.
	uploadMu sync.Mutex
}

// New connects every dependency and registers the bus handlers. Nothing is
// consuming until Run is called.
func New(ctx context.Context, cfg config.Config) (*Runner, error) {
	eng, err := engine.New(ctx, cfg.DockerSocketPath)
	if err != nil {
		return nil, err
	}

	st, err := store.Connect(ctx, cfg.MongoURI)
	if err != nil {
		eng.Close()
		return nil, err
	}

	conn, err := bus.Dial(ctx, cfg.AMQPURL())
	if err != nil {
		st.Close(context.Background())
		eng.Close()
		return nil, err
	}

	consumer, err := bus.NewConsumer(conn, cfg.SubmissionConcurrency)
	if err != nil {
		conn.Close()
		st.Close(context.Background())
		eng.Close()
		return nil, err
	}

	executor := sandbox.New(eng)
	imageManager := images.New(eng, executor, st, cfg.ScratchDir, cfg.DefaultContainerTimeout())
	controller := submit.New(imageManager, executor, st, cfg.ScratchDir,
		cfg.DefaultContainerTimeout(), cfg.SubmissionConcurrency)

	r := &Runner{
		cfg:        cfg,
		engine:     eng,
		store:      st,
		images:     imageManager,
		controller: controller,
		conn:       conn,
		consumer:   consumer,
	}

	consumer.Handle(bus.OpProjectUpload, r.handleProjectUpload)
	consumer.Handle(bus.OpSubmissionExecute, r.handleSubmissionExecute)
	consumer.Handle(bus.OpProjectRemoval, r.handleProjectRemoval)
	return r, nil
}

// Run starts the worker pool and the bus consumers, then blocks until the
// context is cancelled and shutdown has drained.
func (r *Runner) Run(ctx context.Context) error {
	r.reconcileImages(ctx)
	r.controller.Start()

	if err := r.consumer.Start(ctx); err != nil {
		r.shutdown()
		return err
	}
	logger.Info().
		Int("concurrency", r.cfg.SubmissionConcurrency).
		Msg("runner accepting work")

	<-ctx.Done()
	logger.Info().Msg("runner shutting down")
	r.shutdown()
	return nil
}

// shutdown stops intake first, then drains in-flight work, then closes the
// shared handles.
func (r *Runner) shutdown() {
	r.consumer.Close()
	r.consumer.Wait()
	r.controller.Close()
	r.conn.Close()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := r.store.Close(closeCtx); err != nil {
		logger.Warn().Err(err).Msg("store close failed")
	}
	if err := r.engine.Close(); err != nil {
		logger.Warn().Err(err).Msg("engine close failed")
	}
}

// reconcileImages flags projects whose image vanished from the daemon,
// which happens when the process died between a build and its replacement.
func (r *Runner) reconcileImages(ctx context.Context) {
	projects, err := r.store.ListProjects(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("image reconciliation skipped")
		return
	}

	for _, p := range projects {
		exists, err := r.engine.ImageExists(ctx, p.Tag)
		if err != nil {
			logger.Warn().Err(err).Str("project", p.Name).Msg("image reconciliation check failed")
			continue
		}
		if !exists {
			logger.Warn().
				Str("project", p.Name).
				Str("tag", p.Tag).
				Msg("project image missing from daemon; re-upload required")
		}
	}
	// Submission containers from a previous process would eat into the
	// concurrency budget without a worker attached; surface them.
	if running, err := r.engine.RunningManagedCount(ctx, sandbox.PurposeSubmission); err == nil && running > 0 {
		logger.Warn().Int("running", running).Msg("found stray submission containers from a previous run")
	}
	logger.Info().Int("projects", len(projects)).Msg("image reconciliation finished")
}
