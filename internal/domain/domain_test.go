package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// --- DeploymentInfo Tests ---

func testInfo() DeploymentInfo {
	return DeploymentInfo{
		GitOwner:       "nsbno",
		GitRepo:        "trafficinfo",
		GitBranch:      "feature/new-api",
		GitUser:        "alice",
		GitSHA1:        "0123456789abcdef0123456789abcdef01234567",
		ArtifactBucket: "artifacts",
	}
}

func TestDeploymentInfo_ArtifactKey(t *testing.T) {
	info := testInfo()
	want := "artifacts/nsbno/trafficinfo/branches/feature/new-api/0123456789abcdef0123456789abcdef01234567.zip"
	if got := info.ArtifactKey(); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestDeploymentInfo_Validate(t *testing.T) {
	if err := testInfo().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info := testInfo()
	info.GitRepo = ""
	info.GitSHA1 = " "
	err := info.Validate()
	if !errors.Is(err, ErrInvalidDeploymentInfo) {
		t.Fatalf("expected ErrInvalidDeploymentInfo, got %v", err)
	}
	if !strings.Contains(err.Error(), "git_repo") || !strings.Contains(err.Error(), "git_sha1") {
		t.Errorf("error should list every missing field: %v", err)
	}
}

func TestDeploymentInfo_ExecutionName(t *testing.T) {
	info := testInfo()
	at := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

	name := info.ExecutionName(at)

	// Слэш из ветки заменён, длина ограничена
	if strings.ContainsAny(name, "/ :") {
		t.Errorf("name contains unsafe characters: %s", name)
	}
	if len(name) > MaxExecutionNameLength {
		t.Errorf("name is too long: %d", len(name))
	}
	if !strings.HasPrefix(name, info.GitSHA1+"-feature-new-api-") {
		t.Errorf("unexpected name: %s", name)
	}

	// Короткий sha — имя целиком с временем
	info.GitSHA1 = "abc123"
	info.GitBranch = "main"
	if got := info.ExecutionName(at); got != "abc123-main-20240305T140709Z" {
		t.Errorf("unexpected name: %s", got)
	}

	// Разное время — разные имена
	if info.ExecutionName(at) == info.ExecutionName(at.Add(time.Second)) {
		t.Error("names for different timestamps should differ")
	}
}

func TestDeploymentInfo_ExecutionNameLongBranch(t *testing.T) {
	info := testInfo()
	info.GitSHA1 = "0123456789abcdef0123456789abcdef01234567"
	info.GitBranch = "feature/add-retry-to-the-widget-loader"
	at := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

	first := info.ExecutionName(at)
	second := info.ExecutionName(at.Add(5 * time.Hour))

	// Повторный деплой того же пуша получает новое имя
	if first == second {
		t.Fatalf("names collide: %s", first)
	}
	for _, name := range []string{first, second} {
		if len(name) != MaxExecutionNameLength {
			t.Errorf("len(%s) = %d, want %d", name, len(name), MaxExecutionNameLength)
		}
		if !strings.HasPrefix(name, info.GitSHA1+"-feature-add-retry") {
			t.Errorf("unexpected prefix: %s", name)
		}
	}
	if !strings.HasSuffix(first, "-20240305T090000Z") || !strings.HasSuffix(second, "-20240305T140000Z") {
		t.Errorf("timestamp truncated: %s, %s", first, second)
	}
}

func TestDeploymentInfo_StateMachineName(t *testing.T) {
	info := testInfo()
	if got := info.StateMachineName(); got != "deployment-trafficinfo" {
		t.Errorf("unexpected name: %s", got)
	}
}

func TestDeploymentInfo_ExecutionInput(t *testing.T) {
	data, err := testInfo().ExecutionInput()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["git_repo"] != "trafficinfo" {
		t.Errorf("git_repo missing: %v", decoded)
	}
	if decoded["artifact_key"] != testInfo().ArtifactKey() {
		t.Errorf("artifact_key missing: %v", decoded)
	}
}

// --- FlowSpec Tests ---

func TestFlowSpec_UnmarshalYAML(t *testing.T) {
	var doc struct {
		Flow FlowSpec `yaml:"flow"`
	}
	src := `
flow:
  - [service, test, stage]
  - prod
`
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(doc.Flow) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(doc.Flow))
	}
	if doc.Flow[0].Name() != "service, test, stage" {
		t.Errorf("unexpected first stage name: %s", doc.Flow[0].Name())
	}
	if !doc.Flow[0].Parallel {
		t.Error("first stage should be parallel")
	}
	if doc.Flow[1].Name() != "prod" || doc.Flow[1].Parallel {
		t.Errorf("unexpected second stage: %+v", doc.Flow[1])
	}
}

func TestFlowSpec_UnmarshalYAML_Invalid(t *testing.T) {
	var doc struct {
		Flow FlowSpec `yaml:"flow"`
	}
	src := `
flow:
  - {name: prod}
`
	if err := yaml.Unmarshal([]byte(src), &doc); err == nil {
		t.Error("expected error for mapping stage")
	}
}

func TestFlowSpec_JSON(t *testing.T) {
	var flow FlowSpec
	if err := json.Unmarshal([]byte(`[["service","test"],"prod"]`), &flow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flow[0].Name() != "service, test" || flow[1].Name() != "prod" {
		t.Errorf("unexpected flow: %+v", flow)
	}

	out, err := json.Marshal(flow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `[["service","test"],"prod"]` {
		t.Errorf("shape should be preserved, got %s", out)
	}
}

func TestFlowSpec_Environments(t *testing.T) {
	flow := FlowSpec{Group("service", "test", "stage"), Single("prod")}
	got := strings.Join(flow.Environments(), ",")
	if got != "service,test,stage,prod" {
		t.Errorf("unexpected environments: %s", got)
	}
}

func TestFlowSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		flow    FlowSpec
		wantErr error
	}{
		{"valid", FlowSpec{Group("a", "b"), Single("c")}, nil},
		{"empty", FlowSpec{}, ErrEmptyFlow},
		{"empty group", FlowSpec{Group()}, ErrEmptyStage},
		{"blank name", FlowSpec{Single(" ")}, ErrEmptyStage},
		{"duplicate", FlowSpec{Group("a", "b"), Single("a")}, ErrDuplicateEnvironment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.flow.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected ConfigurationError, got %T", err)
			}
		})
	}
}

// --- Job Tests ---

func TestNewJob_CopiesParameters(t *testing.T) {
	params := map[string]any{
		"Payload": map[string]any{"key": "value"},
		"List":    []any{"a"},
	}

	job, err := NewJob("Bump Versions", JobKindFunctionCall, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Изменение исходной map не влияет на Job
	params["Payload"].(map[string]any)["key"] = "changed"
	if job.Parameters()["Payload"].(map[string]any)["key"] != "value" {
		t.Error("job parameters should not alias the input")
	}

	// Изменение возвращённой копии тоже не влияет
	got := job.Parameters()
	got["List"].([]any)[0] = "b"
	if job.Parameters()["List"].([]any)[0] != "a" {
		t.Error("Parameters should return a copy")
	}
}

func TestNewJob_Invalid(t *testing.T) {
	if _, err := NewJob("", JobKindFunctionCall, nil); !errors.Is(err, ErrMissingParameter) {
		t.Errorf("expected ErrMissingParameter, got %v", err)
	}
	if _, err := NewJob("x", JobKind("shell"), nil); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestUnknownJobTypeError(t *testing.T) {
	var err error = &UnknownJobTypeError{Name: "deploy_helm", Known: []string{"bump_versions"}}
	if !errors.Is(err, ErrUnknownJobType) {
		t.Error("UnknownJobTypeError should match ErrUnknownJobType")
	}
	if !strings.Contains(err.Error(), "deploy_helm") {
		t.Errorf("unexpected message: %v", err)
	}
}

// --- Trigger Tests ---

func TestParseObjectEvent(t *testing.T) {
	event := `{"Records":[{"s3":{"bucket":{"name":"triggers"},"object":{"key":"nsbno/trafficinfo/branches/main/trigger+file.json","versionId":"v7"}}}]}`

	ptr, err := ParseObjectEvent([]byte(event))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ptr.Bucket != "triggers" || ptr.VersionID != "v7" {
		t.Errorf("unexpected pointer: %+v", ptr)
	}
	if ptr.Key != "nsbno/trafficinfo/branches/main/trigger file.json" {
		t.Errorf("key should be unescaped: %s", ptr.Key)
	}

	if _, err := ParseObjectEvent([]byte(`{"Records":[]}`)); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestDecodePointerObject(t *testing.T) {
	body := `{"git_owner":"nsbno","git_repo":"trafficinfo","git_branch":"main","git_user":"bob","git_sha1":"abc"}`
	info, err := DecodePointerObject(ObjectPointer{Bucket: "artifacts", Key: "k"}, []byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.ArtifactBucket != "artifacts" {
		t.Errorf("bucket should come from pointer, got %q", info.ArtifactBucket)
	}

	if _, err := DecodePointerObject(ObjectPointer{Bucket: "b", Key: "k"}, []byte(`{}`)); !errors.Is(err, ErrInvalidDeploymentInfo) {
		t.Errorf("expected ErrInvalidDeploymentInfo, got %v", err)
	}
}

// --- Status Tests ---

func TestDeploymentStatus(t *testing.T) {
	if DeploymentStatusRunning.IsTerminal() {
		t.Error("RUNNING should not be terminal")
	}
	if !DeploymentStatusAborted.IsTerminal() {
		t.Error("ABORTED should be terminal")
	}
	if ParseDeploymentStatus("bogus") != "" {
		t.Error("unknown status should parse to empty")
	}

	if s, done := ExecutionStatusToDeployment("TIMED_OUT"); !done || s != DeploymentStatusFailed {
		t.Errorf("TIMED_OUT should map to FAILED, got %s %v", s, done)
	}
	if _, done := ExecutionStatusToDeployment("RUNNING"); done {
		t.Error("RUNNING execution should not be finished")
	}
}
