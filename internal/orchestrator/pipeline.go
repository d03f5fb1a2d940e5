package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/conveyor/internal/config"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/jobs"
	"github.com/shaiso/conveyor/internal/telemetry"
)

// Этапы конвейера (метка stage в метриках и имена span'ов).
const (
	StageResolve  = "resolve"
	StageFetch    = "fetch"
	StageCompile  = "compile"
	StageRegister = "register"
	StageStart    = "start"
)

// PipelineConfig — конфигурация Pipeline.
type PipelineConfig struct {
	Store     DeploymentStore
	Objects   ObjectStore
	Substrate Substrate

	Registry  *jobs.Registry
	Registrar jobs.UnitRegistrar
	Settings  jobs.Settings

	// ConsistencyDelay — пауза между обновлением графа и запуском
	// (0 — без паузы).
	ConsistencyDelay time.Duration

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// Pipeline проводит один деплой: resolve → fetch → compile → register →
// пауза → start. Промежуточные статусы сохраняются в Store.
type Pipeline struct {
	store     DeploymentStore
	objects   ObjectStore
	substrate Substrate

	registry  *jobs.Registry
	registrar jobs.UnitRegistrar
	settings  jobs.Settings

	delay   time.Duration
	metrics *telemetry.Metrics
	logger  *slog.Logger

	now func() time.Time
}

// NewPipeline создаёт Pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = jobs.DefaultRegistry()
	}
	return &Pipeline{
		store:     cfg.Store,
		objects:   cfg.Objects,
		substrate: cfg.Substrate,
		registry:  registry,
		registrar: cfg.Registrar,
		settings:  cfg.Settings,
		delay:     cfg.ConsistencyDelay,
		metrics:   cfg.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Run проводит деплой d до статуса RUNNING.
//
// Деплой в статусе COMPILED (прерванный после регистрации) проходит
// конвейер заново: регистрация графа идемпотентна.
func (p *Pipeline) Run(ctx context.Context, d *domain.Deployment) error {
	ctx, span := telemetry.StartSpan(ctx, "deployment.pipeline",
		telemetry.DeploymentAttributes(d.ID.String(), d.Info.GitOwner, d.Info.GitRepo, d.Info.GitBranch, d.Info.GitSHA1)...)
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	logger := telemetry.WithDeploymentID(p.logger, d.ID.String())

	if err = p.stage(ctx, StageResolve, func(ctx context.Context) error {
		return p.resolve(ctx, d)
	}); err != nil {
		return err
	}
	logger = telemetry.WithRepo(logger, d.Info.GitOwner, d.Info.GitRepo, d.Info.GitBranch, d.Info.GitSHA1)

	var artifact []byte
	if err = p.stage(ctx, StageFetch, func(ctx context.Context) error {
		var ferr error
		artifact, ferr = p.objects.FetchArtifact(ctx, d.Info)
		return ferr
	}); err != nil {
		return err
	}

	var definition []byte
	if err = p.stage(ctx, StageCompile, func(ctx context.Context) error {
		var cerr error
		definition, cerr = p.compile(ctx, d.Info, artifact, logger)
		return cerr
	}); err != nil {
		return err
	}

	if err = p.stage(ctx, StageRegister, func(ctx context.Context) error {
		arn, rerr := p.substrate.Deploy(ctx, d.Info.StateMachineName(), definition)
		if rerr != nil {
			return rerr
		}
		d.MarkCompiled(arn, definition)
		return p.store.Update(ctx, d)
	}); err != nil {
		return err
	}
	logger.Info("state machine registered", "state_machine_arn", d.StateMachineARN)

	if err = sleep(ctx, p.delay); err != nil {
		return err
	}

	if err = p.stage(ctx, StageStart, func(ctx context.Context) error {
		return p.start(ctx, d)
	}); err != nil {
		return err
	}
	logger.Info("deployment started", "execution_arn", d.ExecutionARN)
	return nil
}

// resolve заполняет Info из указателя, если Info ещё пуст.
func (p *Pipeline) resolve(ctx context.Context, d *domain.Deployment) error {
	if d.Info.GitRepo == "" {
		if d.Source == nil {
			return ErrMissingInfo
		}
		info, err := p.objects.ResolvePointer(ctx, *d.Source)
		if err != nil {
			return err
		}
		d.Info = info
	}
	return d.Info.Validate()
}

// compile собирает граф из конфигурации внутри артефакта.
func (p *Pipeline) compile(ctx context.Context, info domain.DeploymentInfo, artifact []byte, logger *slog.Logger) ([]byte, error) {
	deployment, err := config.LoadArtifact(artifact)
	if err != nil {
		return nil, err
	}

	def, err := jobs.Compile(ctx, jobs.CompileInput{
		Info:       info,
		Deployment: deployment,
		Registry:   p.registry,
		Registrar:  p.registrar,
		Settings:   p.settings,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	p.metrics.ObserveCompiled(def.CountAll())

	return def.JSON()
}

func (p *Pipeline) start(ctx context.Context, d *domain.Deployment) error {
	input, err := d.Info.ExecutionInput()
	if err != nil {
		return err
	}

	at := p.now()
	name := d.Info.ExecutionName(at)
	arn, err := p.substrate.Start(ctx, d.StateMachineARN, name, input)
	if err != nil {
		return err
	}

	d.MarkRunning(name, arn, at)
	return p.store.Update(ctx, d)
}

// stage выполняет этап под span'ом и с метрикой длительности.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.StartSpan(ctx, "deployment."+name)
	started := time.Now()

	err := fn(ctx)

	p.metrics.ObserveStage(name, time.Since(started), err)
	telemetry.EndSpan(span, err)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// sleep ждёт d или отмены контекста.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
