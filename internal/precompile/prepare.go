package precompile

import (
	"context"

	"github.com/pso-precache/internal/rhi"
	"github.com/pso-precache/internal/shaderlib"
	"github.com/pso-precache/pkg/model"
	"github.com/pso-precache/pkg/utils"
)

// OutcomeKind classifies the result of preparing a fetched entry.
type OutcomeKind int

const (
	// OutcomeReady means all shaders exist and preloads were issued.
	OutcomeReady OutcomeKind = iota
	// OutcomeRequeue means shader code is momentarily unavailable; the
	// original header must re-enter the backlog at the front.
	OutcomeRequeue
	// OutcomeIncompatible means the descriptor needs a capability this run
	// does not have. Permanently discarded.
	OutcomeIncompatible
	// OutcomeInvalid means the descriptor bytes are corrupt or inconsistent.
	// Permanently discarded.
	OutcomeInvalid
)

// Outcome is the routing decision for one fetched entry.
type Outcome struct {
	Kind   OutcomeKind
	Job    *CompileJob      // set when Kind == OutcomeReady
	Header model.TaskHeader // set when Kind == OutcomeRequeue
}

// CompileJob is a fully decoded descriptor plus the handle tracking its
// outstanding shader preloads. It moves to CompileStage once every preload
// has landed.
type CompileJob struct {
	Header     model.TaskHeader
	Descriptor *model.Descriptor
	Handle     *ReadHandle
}

// PrepareStage decodes completed descriptor reads, classifies them and
// issues shader preloads for the compilable ones.
//
// Not safe for concurrent use; the Scheduler's mutex guards it.
type PrepareStage struct {
	library  shaderlib.Library
	backend  rhi.Backend
	pool     *ReadPool
	counters *Counters
	logger   utils.Logger
}

// NewPrepareStage creates a stage classifying against the given library and
// backend capabilities.
func NewPrepareStage(library shaderlib.Library, backend rhi.Backend, pool *ReadPool, counters *Counters, logger utils.Logger) *PrepareStage {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &PrepareStage{
		library:  library,
		backend:  backend,
		pool:     pool,
		counters: counters,
		logger:   logger,
	}
}

// Prepare classifies one completed fetch entry. Drop outcomes (Incompatible,
// Invalid) are counted here; Ready and Requeue accounting happens when the
// task reaches its next stage.
func (p *PrepareStage) Prepare(ctx context.Context, entry *FetchEntry) Outcome {
	hash := entry.Header.Hash

	if err := entry.Handle.Err(); err != nil {
		// The descriptor bytes are the store's contract; a read failure here
		// is store corruption, not a transient shader gap.
		p.logger.Error("Descriptor read failed for %s, dropping task: %v", hash, err)
		p.counters.drop()
		return Outcome{Kind: OutcomeInvalid}
	}

	desc, err := model.DecodeDescriptor(entry.Bytes())
	if err != nil {
		p.logger.Error("Descriptor for %s failed structural decode, dropping task: %v", hash, err)
		p.counters.drop()
		return Outcome{Kind: OutcomeInvalid}
	}

	// Capability check comes before shader availability so that a task both
	// missing shaders and needing an unsupported feature is dropped rather
	// than requeued forever.
	if desc.Kind == model.KindRayTracing && !p.backend.SupportsRayTracing() {
		p.logger.Debug("Ray tracing unsupported, discarding %s", hash)
		p.counters.drop()
		return Outcome{Kind: OutcomeIncompatible}
	}

	shaders := desc.ShaderHashes()
	if len(shaders) == 0 {
		p.logger.Error("Descriptor for %s references no shaders, dropping task", hash)
		p.counters.drop()
		return Outcome{Kind: OutcomeInvalid}
	}

	for _, sh := range shaders {
		if !p.library.Contains(sh) {
			p.logger.Debug("Shader %s for %s not yet available, requeueing", sh, hash)
			return Outcome{Kind: OutcomeRequeue, Header: entry.Header}
		}
	}

	job := &CompileJob{
		Header:     entry.Header,
		Descriptor: desc,
		Handle:     newReadHandle(),
	}
	for _, sh := range shaders {
		sh := sh
		job.Handle.issue(ctx, p.pool, uint64(sh), func(ctx context.Context) ([]byte, error) {
			return p.library.Preload(ctx, sh)
		})
	}

	return Outcome{Kind: OutcomeReady, Job: job}
}
