// Package images owns the template-image lifecycle: build from an uploaded
// archive, baseline test discovery, replacement, and removal.
package images

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/schmitthub/forgeyard/internal/archive"
	"github.com/schmitthub/forgeyard/internal/engine"
	"github.com/schmitthub/forgeyard/internal/fault"
	"github.com/schmitthub/forgeyard/internal/logger"
	"github.com/schmitthub/forgeyard/internal/sandbox"
	"github.com/schmitthub/forgeyard/internal/store"
	"github.com/schmitthub/forgeyard/internal/template"
	"github.com/schmitthub/forgeyard/internal/testoutput"
)

// ProjectConfig is the optional caller-supplied configuration attached to a
// template upload.
type ProjectConfig struct {
	ContainerTimeoutSec int               `json:"containerTimeout,omitempty"`
	TestExecutionArgs   map[string]string `json:"testExecutionArguments,omitempty"`
}

type dockerAPI interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, opts engine.ImageBuildOpts) (string, error)
	ImageRemove(ctx context.Context, ref string) error
	ImageExists(ctx context.Context, ref string) (bool, error)
}

type executorAPI interface {
	Run(ctx context.Context, spec sandbox.Spec) (sandbox.Results, error)
}

type storeAPI interface {
	UpsertProject(ctx context.Context, p store.Project) error
	GetProject(ctx context.Context, name string) (store.Project, error)
	DeleteProject(ctx context.Context, name string) error
	InsertExecution(ctx context.Context, exec *store.ContainerExecution) error
}

// Manager builds and tracks one sandbox image per project.
type Manager struct {
	docker         dockerAPI
	executor       executorAPI
	store          storeAPI
	scratchRoot    string
	defaultTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a manager writing scratch trees under scratchRoot.
func New(docker dockerAPI, executor executorAPI, st storeAPI, scratchRoot string, defaultTimeout time.Duration) *Manager {
	return &Manager{
		docker:         docker,
		executor:       executor,
		store:          st,
		scratchRoot:    scratchRoot,
		defaultTimeout: defaultTimeout,
		locks:          map[string]*sync.Mutex{},
	}
}

// lock returns the per-project mutex, creating it on first use. Builds and
// removals of the same project serialize on it so readers never observe a
// half-replaced image.
func (m *Manager) lock(project string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lk, ok := m.locks[project]
	if !ok {
		lk = &sync.Mutex{}
		m.locks[project] = lk
	}
	return lk
}

// Build creates or replaces the project image from a template archive, runs
// baseline discovery, and persists the result.
func (m *Manager) Build(ctx context.Context, project string, archiveBytes []byte, cfg ProjectConfig) (store.Project, store.ContainerExecution, error) {
	var noProj store.Project
	var noExec store.ContainerExecution

	if !engine.ValidProjectName(project) {
		return noProj, noExec, fault.New(fault.BadInput, "invalid project name %q", project)
	}

	lk := m.lock(project)
	lk.Lock()
	defer lk.Unlock()

	scratch, err := archive.NewCreationScratch(m.scratchRoot, project)
	if err != nil {
		return noProj, noExec, fault.Wrap(fault.Internal, err, "creating scratch dir")
	}
	defer scratch.Cleanup()

	root, err := prepareTemplate(archiveBytes, scratch.Dir)
	if err != nil {
		return noProj, noExec, err
	}

	buildContext, err := archive.TarDir(root)
	if err != nil {
		return noProj, noExec, fault.Wrap(fault.Internal, err, "packing build context")
	}

	tag := engine.ImageTag(project)
	imageID, err := m.docker.ImageBuild(ctx, buildContext, engine.ImageBuildOpts{
		Tag:     tag,
		Project: project,
	})
	if err != nil {
		return noProj, noExec, fault.Wrap(fault.ImageBuild, err, "building image for project %q", project)
	}

	timeout := m.defaultTimeout
	if cfg.ContainerTimeoutSec > 0 {
		timeout = time.Duration(cfg.ContainerTimeoutSec) * time.Second
	}

	startedAt := time.Now().UTC()
	res, err := m.executor.Run(ctx, sandbox.Spec{
		Name:    engine.CreationContainerName(project),
		Image:   tag,
		Cmd:     template.SnapshotCommand(),
		Project: project,
		Purpose: sandbox.PurposeCreation,
		Timeout: timeout,
	})
	finishedAt := time.Now().UTC()
	if err != nil {
		m.teardownImage(tag)
		return noProj, noExec, fault.Wrap(fault.BaselineDiscovery, err, "baseline discovery for %q did not run", project)
	}
	if res.StatusCode != sandbox.CodePurposelyStopped {
		m.teardownImage(tag)
		return noProj, noExec, fault.New(fault.BaselineDiscovery,
			"baseline discovery for %q ended %s (exit %d)", project, res.StatusCode, res.ExitCode)
	}

	baseline := testoutput.ParseGasSnapshot(res.Stdout)

	exec := store.ContainerExecution{
		Project:    project,
		Purpose:    store.PurposeProjectCreation,
		StatusCode: string(sandbox.CodeSuccess),
		ExitCode:   res.ExitCode,
		ElapsedMS:  res.Elapsed.Milliseconds(),
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		TestOutput: &baseline,
	}
	if err := m.store.InsertExecution(ctx, &exec); err != nil {
		return noProj, noExec, err
	}

	proj := store.Project{
		Name:                project,
		ImageID:             imageID,
		Tag:                 tag,
		BuiltAt:             finishedAt,
		ContainerTimeoutSec: cfg.ContainerTimeoutSec,
		DefaultExecArgs:     cfg.TestExecutionArgs,
		BaselineTests:       baseline.TestNames(),
		Baseline:            baseline,
	}
	if err := m.store.UpsertProject(ctx, proj); err != nil {
		return noProj, noExec, err
	}

	logger.Info().
		Str("project", project).
		Str("image_id", imageID).
		Int("baseline_tests", len(proj.BaselineTests)).
		Msg("project image built")
	return proj, exec, nil
}

// Remove prunes the project image and deletes the project record. Execution
// history is retained.
func (m *Manager) Remove(ctx context.Context, project string) error {
	lk := m.lock(project)
	lk.Lock()
	defer lk.Unlock()

	if _, err := m.store.GetProject(ctx, project); err != nil {
		return err
	}
	if err := m.docker.ImageRemove(ctx, engine.ImageTag(project)); err != nil {
		return fault.Wrap(fault.Internal, err, "removing image for %q", project)
	}
	if err := m.store.DeleteProject(ctx, project); err != nil {
		return err
	}

	logger.Info().Str("project", project).Msg("project removed")
	return nil
}

// Lookup returns the tracked project or PROJECT_NOT_FOUND.
func (m *Manager) Lookup(ctx context.Context, project string) (store.Project, error) {
	return m.store.GetProject(ctx, project)
}

// teardownImage removes a freshly built image whose baseline discovery
// failed, leaving the previous image (if any) untagged but the project
// record untouched.
func (m *Manager) teardownImage(tag string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.docker.ImageRemove(ctx, tag); err != nil {
		logger.Warn().Err(err).Str("tag", tag).Msg("failed to tear down image")
	}
}

// prepareTemplate extracts the archive, locates the template root, checks
// the required layout, and overlays the sandbox build files.
func prepareTemplate(archiveBytes []byte, dest string) (string, error) {
	if err := archive.Extract(archiveBytes, dest); err != nil {
		return "", err
	}

	root := dest
	if err := archive.ValidateTemplate(root); err != nil {
		nested, nestedErr := archive.FindProjectRoot(dest)
		if nestedErr != nil {
			return "", err
		}
		if err := archive.ValidateTemplate(nested); err != nil {
			return "", err
		}
		root = nested
	}

	if err := template.Overlay(root); err != nil {
		return "", fault.Wrap(fault.Internal, err, "overlaying sandbox files")
	}
	return root, nil
}
