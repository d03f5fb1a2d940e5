package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/shaiso/conveyor/internal/awsx"
	"github.com/shaiso/conveyor/internal/config"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/jobs"
	"github.com/shaiso/conveyor/internal/mq"
	"github.com/shaiso/conveyor/internal/repo"
)

// --- Fakes ---

type fakeStore struct {
	mu          sync.Mutex
	deployments map[uuid.UUID]domain.Deployment
	history     []domain.DeploymentStatus
	updateErr   error

	// runningErrs — сколько следующих сохранений RUNNING завершатся ошибкой.
	runningErrs int
}

func newFakeStore(ds ...*domain.Deployment) *fakeStore {
	s := &fakeStore{deployments: make(map[uuid.UUID]domain.Deployment)}
	for _, d := range ds {
		s.deployments[d.ID] = *d
	}
	return s
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deployments[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &d, nil
}

func (s *fakeStore) ListByStatus(_ context.Context, status domain.DeploymentStatus, limit int) ([]domain.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Deployment
	for _, d := range s.deployments {
		if d.Status == status && len(out) < limit {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *fakeStore) Update(_ context.Context, d *domain.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	if d.Status == domain.DeploymentStatusRunning && s.runningErrs > 0 {
		s.runningErrs--
		return errors.New("connection reset")
	}
	stored, ok := s.deployments[d.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if stored.Status.IsTerminal() {
		return repo.ErrInvalidState
	}
	s.deployments[d.ID] = *d
	s.history = append(s.history, d.Status)
	return nil
}

func (s *fakeStore) get(id uuid.UUID) domain.Deployment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deployments[id]
}

type fakeObjects struct {
	artifact []byte
	info     domain.DeploymentInfo
	err      error

	fetched []domain.DeploymentInfo
}

func (f *fakeObjects) ResolvePointer(_ context.Context, _ domain.ObjectPointer) (domain.DeploymentInfo, error) {
	return f.info, f.err
}

func (f *fakeObjects) FetchArtifact(_ context.Context, info domain.DeploymentInfo) ([]byte, error) {
	f.fetched = append(f.fetched, info)
	return f.artifact, f.err
}

type startCall struct {
	stateMachineARN string
	name            string
	input           []byte
}

type fakeSubstrate struct {
	deployed  []string
	started   []startCall
	deployErr error
	onDeploy  func()

	status awsx.ExecutionStatus
}

func (f *fakeSubstrate) Deploy(_ context.Context, name string, definition []byte) (string, error) {
	if f.onDeploy != nil {
		f.onDeploy()
	}
	if f.deployErr != nil {
		return "", f.deployErr
	}
	f.deployed = append(f.deployed, string(definition))
	return "arn:aws:states:eu-west-1:111111111111:stateMachine:" + name, nil
}

func (f *fakeSubstrate) Start(_ context.Context, smARN, name string, input []byte) (string, error) {
	f.started = append(f.started, startCall{smARN, name, input})
	return "arn:aws:states:eu-west-1:111111111111:execution:" + name, nil
}

func (f *fakeSubstrate) Describe(_ context.Context, _ string) (awsx.ExecutionStatus, error) {
	return f.status, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	statuses []domain.DeploymentStatus
}

func (f *fakePublisher) PublishDeploymentStatus(_ context.Context, d *domain.Deployment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, d.Status)
	return nil
}

// --- Helpers ---

const standardConfig = `
flow:
  - [service, test, stage]
  - prod
deployment:
  steps:
    - bump_versions
    - deploy_terraform
applications:
  lambda: [worker]
`

func buildArtifact(t *testing.T, deploymentYAML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(config.ArtifactConfigPath)
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	if _, err := w.Write([]byte(deploymentYAML)); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func testInfo() domain.DeploymentInfo {
	return domain.DeploymentInfo{
		GitOwner:       "nsbno",
		GitRepo:        "trafficinfo",
		GitBranch:      "main",
		GitUser:        "dev",
		GitSHA1:        "0123456789abcdef0123456789abcdef01234567",
		ArtifactBucket: "artifacts",
	}
}

func testSettings() jobs.Settings {
	return jobs.Settings{
		Region:             "eu-west-1",
		VersionFunctionARN: "arn:aws:lambda:eu-west-1:111111111111:function:set-version",
		VersionRoleARN:     "arn:aws:iam::111111111111:role/set-version",
		VersionSSMPrefix:   "artifact-version",
		ArtifactBucket:     "artifacts",
		DeployAccounts: map[string]string{
			"service": "111111111111",
			"test":    "222222222222",
			"stage":   "333333333333",
			"prod":    "444444444444",
		},
		Cluster:          "deployments",
		Subnets:          []string{"subnet-a"},
		TaskRoleARN:      "arn:aws:iam::111111111111:role/task",
		ExecutionRoleARN: "arn:aws:iam::111111111111:role/execution",
		LogGroup:         "deployments",
		SidecarImage:     "conveyor/sidecar:1.0",
	}
}

type fixture struct {
	store     *fakeStore
	objects   *fakeObjects
	substrate *fakeSubstrate
	publisher *fakePublisher
	orch      *Orchestrator
}

func newFixture(t *testing.T, deploymentYAML string, ds ...*domain.Deployment) *fixture {
	t.Helper()
	f := &fixture{
		store:     newFakeStore(ds...),
		objects:   &fakeObjects{artifact: buildArtifact(t, deploymentYAML)},
		substrate: &fakeSubstrate{},
		publisher: &fakePublisher{},
	}

	pipeline := NewPipeline(PipelineConfig{
		Store:     f.store,
		Objects:   f.objects,
		Substrate: f.substrate,
		Registrar: jobs.DryRunRegistrar{Region: "eu-west-1", Account: "111111111111"},
		Settings:  testSettings(),
	})
	pipeline.now = func() time.Time {
		return time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	}

	f.orch = New(Config{
		Store:     f.store,
		Substrate: f.substrate,
		Pipeline:  pipeline,
		Publisher: f.publisher,
	})
	return f
}

// --- Process Tests ---

func TestProcess_StartsDeployment(t *testing.T) {
	d := domain.NewDeployment(testInfo(), nil)
	f := newFixture(t, standardConfig, d)

	if err := f.orch.Process(context.Background(), d.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got := f.store.get(d.ID)
	if got.Status != domain.DeploymentStatusRunning {
		t.Fatalf("status = %s, want RUNNING (error %q)", got.Status, got.Error)
	}

	// Промежуточный COMPILED сохраняется до запуска
	want := []domain.DeploymentStatus{domain.DeploymentStatusCompiled, domain.DeploymentStatusRunning}
	if diff := cmp.Diff(want, f.store.history); diff != "" {
		t.Errorf("status history mismatch (-want +got):\n%s", diff)
	}

	wantSM := "arn:aws:states:eu-west-1:111111111111:stateMachine:deployment-trafficinfo"
	if got.StateMachineARN != wantSM {
		t.Errorf("StateMachineARN = %q, want %q", got.StateMachineARN, wantSM)
	}
	if len(f.substrate.started) != 1 {
		t.Fatalf("started %d executions, want 1", len(f.substrate.started))
	}
	start := f.substrate.started[0]
	if start.stateMachineARN != wantSM {
		t.Errorf("started on %q, want %q", start.stateMachineARN, wantSM)
	}
	if start.name != got.ExecutionName {
		t.Errorf("execution name %q not recorded (got %q)", start.name, got.ExecutionName)
	}
	if !strings.HasPrefix(start.name, "0123456789abcdef0123456789abcdef01234567-main-20240301T123000Z") {
		t.Errorf("execution name = %q", start.name)
	}

	var input map[string]any
	if err := json.Unmarshal(start.input, &input); err != nil {
		t.Fatalf("execution input: %v", err)
	}
	if input["artifact_key"] == nil {
		t.Errorf("execution input has no artifact_key: %v", input)
	}

	if !json.Valid(got.Definition) {
		t.Fatalf("definition is not valid JSON: %s", got.Definition)
	}
	if !strings.Contains(string(got.Definition), "Get Latest Artifact Versions") {
		t.Errorf("definition misses version fetch")
	}
	if diff := cmp.Diff([]domain.DeploymentStatus{domain.DeploymentStatusRunning}, f.publisher.statuses); diff != "" {
		t.Errorf("published statuses mismatch (-want +got):\n%s", diff)
	}
	if f.orch.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d after Process", f.orch.ActiveCount())
	}
}

func TestProcess_ResolvesPointer(t *testing.T) {
	ptr := &domain.ObjectPointer{Bucket: "artifacts", Key: "trigger.json"}
	d := domain.NewDeployment(domain.DeploymentInfo{}, ptr)
	f := newFixture(t, standardConfig, d)
	f.objects.info = testInfo()

	if err := f.orch.Process(context.Background(), d.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got := f.store.get(d.ID)
	if got.Status != domain.DeploymentStatusRunning {
		t.Fatalf("status = %s, want RUNNING (error %q)", got.Status, got.Error)
	}
	if got.Info.GitRepo != "trafficinfo" {
		t.Errorf("Info.GitRepo = %q, want trafficinfo", got.Info.GitRepo)
	}
	if len(f.objects.fetched) != 1 || f.objects.fetched[0].GitSHA1 != testInfo().GitSHA1 {
		t.Errorf("artifact fetched for %+v", f.objects.fetched)
	}
}

func TestProcess_ConfigurationErrorFailsDeployment(t *testing.T) {
	// Для qa нет аккаунта: bump_versions не собирается
	doc := "flow: [qa]\ndeployment:\n  steps:\n    - bump_versions\n"
	d := domain.NewDeployment(testInfo(), nil)
	f := newFixture(t, doc, d)

	if err := f.orch.Process(context.Background(), d.ID); err != nil {
		t.Fatalf("Process should swallow pipeline errors, got %v", err)
	}

	got := f.store.get(d.ID)
	if got.Status != domain.DeploymentStatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if !strings.Contains(got.Error, "compile") {
		t.Errorf("Error = %q, want compile stage", got.Error)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt should be set")
	}
	if len(f.substrate.deployed) != 0 {
		t.Errorf("nothing should be registered, got %d definitions", len(f.substrate.deployed))
	}
	if diff := cmp.Diff([]domain.DeploymentStatus{domain.DeploymentStatusFailed}, f.publisher.statuses); diff != "" {
		t.Errorf("published statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestProcess_Failures(t *testing.T) {
	tests := []struct {
		name      string
		info      domain.DeploymentInfo
		configure func(f *fixture)
		wantStage string
	}{
		{
			name:      "no info and no source",
			info:      domain.DeploymentInfo{},
			wantStage: StageResolve,
		},
		{
			name: "artifact missing",
			info: testInfo(),
			configure: func(f *fixture) {
				f.objects.err = awsx.ErrObjectNotFound
			},
			wantStage: StageFetch,
		},
		{
			name: "artifact without config",
			info: testInfo(),
			configure: func(f *fixture) {
				f.objects.artifact = []byte("not a zip")
			},
			wantStage: StageCompile,
		},
		{
			name: "registration rejected",
			info: testInfo(),
			configure: func(f *fixture) {
				f.substrate.deployErr = errors.New("access denied")
			},
			wantStage: StageRegister,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := domain.NewDeployment(tt.info, nil)
			f := newFixture(t, standardConfig, d)
			if tt.configure != nil {
				tt.configure(f)
			}

			if err := f.orch.Process(context.Background(), d.ID); err != nil {
				t.Fatalf("Process: %v", err)
			}

			got := f.store.get(d.ID)
			if got.Status != domain.DeploymentStatusFailed {
				t.Fatalf("status = %s, want FAILED", got.Status)
			}
			if !strings.HasPrefix(got.Error, tt.wantStage+": ") {
				t.Errorf("Error = %q, want prefix %q", got.Error, tt.wantStage)
			}
			if len(f.substrate.started) != 0 {
				t.Error("no execution should be started")
			}
		})
	}
}

func TestProcess_StartedExecutionIsNeverFailed(t *testing.T) {
	d := domain.NewDeployment(testInfo(), nil)
	f := newFixture(t, standardConfig, d)
	f.store.runningErrs = 1

	if err := f.orch.Process(context.Background(), d.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got := f.store.get(d.ID)
	if got.Status != domain.DeploymentStatusRunning {
		t.Fatalf("status = %s, want RUNNING", got.Status)
	}
	if got.ExecutionARN == "" {
		t.Error("execution ARN should be saved for Sync")
	}
	if len(f.substrate.started) != 1 {
		t.Errorf("started = %d, want 1", len(f.substrate.started))
	}
	if diff := cmp.Diff([]domain.DeploymentStatus{domain.DeploymentStatusRunning}, f.publisher.statuses); diff != "" {
		t.Errorf("published statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestProcess_StartedExecutionSaveFailureIsRetried(t *testing.T) {
	d := domain.NewDeployment(testInfo(), nil)
	f := newFixture(t, standardConfig, d)
	f.store.runningErrs = 2

	if err := f.orch.Process(context.Background(), d.ID); err == nil {
		t.Fatal("expected error when the running record cannot be saved")
	}

	// Запись не стала FAILED: сообщение вернётся в очередь
	if got := f.store.get(d.ID); got.Status != domain.DeploymentStatusCompiled {
		t.Errorf("status = %s, want COMPILED", got.Status)
	}
}

func TestProcess_CancelledDuringDelayIsRetried(t *testing.T) {
	d := domain.NewDeployment(testInfo(), nil)
	f := newFixture(t, standardConfig, d)
	f.orch.pipeline.delay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.substrate.onDeploy = cancel

	err := f.orch.Process(ctx, d.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Process error = %v, want context.Canceled", err)
	}

	// Деплой не финализируется: его подберёт polling
	got := f.store.get(d.ID)
	if got.Status != domain.DeploymentStatusCompiled {
		t.Errorf("status = %s, want COMPILED", got.Status)
	}
	if len(f.substrate.started) != 0 {
		t.Error("execution must not start after cancellation")
	}
}

func TestProcess_RerunsCompiled(t *testing.T) {
	d := domain.NewDeployment(testInfo(), nil)
	d.MarkCompiled("arn:aws:states:eu-west-1:111111111111:stateMachine:deployment-trafficinfo", []byte(`{}`))
	f := newFixture(t, standardConfig, d)

	if err := f.orch.Process(context.Background(), d.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := f.store.get(d.ID); got.Status != domain.DeploymentStatusRunning {
		t.Errorf("status = %s, want RUNNING", got.Status)
	}
	if len(f.substrate.deployed) != 1 {
		t.Errorf("definition registered %d times, want 1", len(f.substrate.deployed))
	}
}

func TestProcess_NotRunnable(t *testing.T) {
	d := domain.NewDeployment(testInfo(), nil)
	d.MarkRunning("exec", "arn:exec", time.Now())
	f := newFixture(t, standardConfig, d)

	err := f.orch.Process(context.Background(), d.ID)
	if !errors.Is(err, ErrDeploymentNotRunnable) {
		t.Errorf("error = %v, want ErrDeploymentNotRunnable", err)
	}
	if len(f.substrate.deployed) != 0 {
		t.Error("running deployment must not be recompiled")
	}
}

func TestProcess_AlreadyActive(t *testing.T) {
	d := domain.NewDeployment(testInfo(), nil)
	f := newFixture(t, standardConfig, d)

	if !f.orch.tryActivate(d.ID) {
		t.Fatal("first activation should succeed")
	}
	defer f.orch.deactivate(d.ID)

	if err := f.orch.Process(context.Background(), d.ID); !errors.Is(err, ErrDeploymentAlreadyActive) {
		t.Errorf("error = %v, want ErrDeploymentAlreadyActive", err)
	}
}

// --- Handler Tests ---

func TestHandleDeploymentRequested(t *testing.T) {
	d := domain.NewDeployment(testInfo(), nil)
	f := newFixture(t, standardConfig, d)

	tests := []struct {
		name          string
		payload       any
		wantErr       bool
		wantPermanent bool
	}{
		{
			name:    "known deployment",
			payload: mq.DeploymentRequestedPayload{DeploymentID: d.ID},
		},
		{
			name:    "already running is acked",
			payload: mq.DeploymentRequestedPayload{DeploymentID: d.ID},
		},
		{
			name:          "unknown deployment",
			payload:       mq.DeploymentRequestedPayload{DeploymentID: uuid.New()},
			wantErr:       true,
			wantPermanent: true,
		},
		{
			name:          "malformed payload",
			payload:       "not an object",
			wantErr:       true,
			wantPermanent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delivery := &mq.Delivery{Message: *mq.NewMessage(mq.MessageTypeDeploymentRequested, tt.payload)}

			err := f.orch.handleDeploymentRequested(context.Background(), delivery)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := errors.Is(err, mq.ErrPermanent); got != tt.wantPermanent {
				t.Errorf("permanent = %v, want %v", got, tt.wantPermanent)
			}
		})
	}

	if len(f.substrate.started) != 1 {
		t.Errorf("started %d executions, want 1", len(f.substrate.started))
	}
}

// --- Poll Tests ---

func TestPoll_PicksUpPendingAndCompiled(t *testing.T) {
	pending := domain.NewDeployment(testInfo(), nil)
	compiled := domain.NewDeployment(testInfo(), nil)
	compiled.MarkCompiled("arn:sm", nil)
	running := domain.NewDeployment(testInfo(), nil)
	running.MarkRunning("exec", "arn:exec", time.Now())

	f := newFixture(t, standardConfig, pending, compiled, running)
	f.orch.poll(context.Background())

	for _, id := range []uuid.UUID{pending.ID, compiled.ID} {
		if got := f.store.get(id); got.Status != domain.DeploymentStatusRunning {
			t.Errorf("deployment %s status = %s, want RUNNING", id, got.Status)
		}
	}
	if len(f.substrate.started) != 2 {
		t.Errorf("started %d executions, want 2", len(f.substrate.started))
	}
}

// --- Sync Tests ---

func TestSync(t *testing.T) {
	tests := []struct {
		name       string
		exec       awsx.ExecutionStatus
		wantStatus domain.DeploymentStatus
		wantError  string
		wantPublic bool
	}{
		{
			name:       "still running",
			exec:       awsx.ExecutionStatus{Status: "RUNNING"},
			wantStatus: domain.DeploymentStatusRunning,
		},
		{
			name:       "succeeded",
			exec:       awsx.ExecutionStatus{Status: "SUCCEEDED"},
			wantStatus: domain.DeploymentStatusSucceeded,
			wantPublic: true,
		},
		{
			name:       "failed with cause",
			exec:       awsx.ExecutionStatus{Status: "FAILED", Error: "States.TaskFailed", Cause: "terraform apply failed"},
			wantStatus: domain.DeploymentStatusFailed,
			wantError:  "States.TaskFailed: terraform apply failed",
			wantPublic: true,
		},
		{
			name:       "timed out",
			exec:       awsx.ExecutionStatus{Status: "TIMED_OUT"},
			wantStatus: domain.DeploymentStatusFailed,
			wantPublic: true,
		},
		{
			name:       "aborted",
			exec:       awsx.ExecutionStatus{Status: "ABORTED", Cause: "stopped by operator"},
			wantStatus: domain.DeploymentStatusAborted,
			wantError:  "stopped by operator",
			wantPublic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := domain.NewDeployment(testInfo(), nil)
			d.MarkRunning("exec", "arn:exec", time.Now())
			f := newFixture(t, standardConfig, d)
			f.substrate.status = tt.exec

			if err := f.orch.Sync(context.Background(), d); err != nil {
				t.Fatalf("Sync: %v", err)
			}

			got := f.store.get(d.ID)
			if got.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", got.Status, tt.wantStatus)
			}
			if got.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", got.Error, tt.wantError)
			}
			if published := len(f.publisher.statuses) > 0; published != tt.wantPublic {
				t.Errorf("published = %v, want %v", published, tt.wantPublic)
			}
		})
	}
}

func TestSync_AlreadyFinishedIsIgnored(t *testing.T) {
	d := domain.NewDeployment(testInfo(), nil)
	d.MarkRunning("exec", "arn:exec", time.Now())
	f := newFixture(t, standardConfig, d)
	f.substrate.status = awsx.ExecutionStatus{Status: "SUCCEEDED"}
	f.store.updateErr = repo.ErrInvalidState

	if err := f.orch.Sync(context.Background(), d); err != nil {
		t.Errorf("Sync: %v", err)
	}
	if len(f.publisher.statuses) != 0 {
		t.Error("no status should be published for a finished record")
	}
}

func TestSync_LoopFinishesRunning(t *testing.T) {
	d := domain.NewDeployment(testInfo(), nil)
	d.MarkRunning("exec", "arn:exec", time.Now())
	f := newFixture(t, standardConfig, d)
	f.substrate.status = awsx.ExecutionStatus{Status: "SUCCEEDED"}

	f.orch.sync(context.Background())

	if got := f.store.get(d.ID); got.Status != domain.DeploymentStatusSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", got.Status)
	}
}

// --- Lifecycle Tests ---

func TestStartStop_WithoutQueue(t *testing.T) {
	d := domain.NewDeployment(testInfo(), nil)
	f := newFixture(t, standardConfig, d)

	if err := f.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Первый проход polling выполняется сразу
	deadline := time.Now().Add(2 * time.Second)
	for f.store.get(d.ID).Status != domain.DeploymentStatusRunning && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	f.orch.Stop()

	if !f.orch.IsStopped() {
		t.Error("IsStopped should be true")
	}
	if got := f.store.get(d.ID); got.Status != domain.DeploymentStatusRunning {
		t.Errorf("status = %s, want RUNNING", got.Status)
	}
}
