package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxExecutionNameLength — ограничение подложки на длину имени execution.
const MaxExecutionNameLength = 80

// DeploymentInfo — данные о пуше, с которыми запускается деплой.
//
// Приходят либо напрямую в событии, либо из JSON-объекта в хранилище
// артефактов (тогда ArtifactBucket берётся из указателя).
type DeploymentInfo struct {
	GitOwner       string `json:"git_owner"`
	GitRepo        string `json:"git_repo"`
	GitBranch      string `json:"git_branch"`
	GitUser        string `json:"git_user"`
	GitSHA1        string `json:"git_sha1"`
	ArtifactBucket string `json:"artifact_bucket"`
}

// Validate проверяет обязательные поля.
func (d DeploymentInfo) Validate() error {
	var missing []string
	fields := []struct {
		name  string
		value string
	}{
		{"git_owner", d.GitOwner},
		{"git_repo", d.GitRepo},
		{"git_branch", d.GitBranch},
		{"git_sha1", d.GitSHA1},
		{"artifact_bucket", d.ArtifactBucket},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidDeploymentInfo, strings.Join(missing, ", "))
	}
	return nil
}

// ArtifactKey — ключ zip-артефакта пуша.
// Первым сегментом повторяется имя бакета.
func (d DeploymentInfo) ArtifactKey() string {
	return strings.Join([]string{
		d.ArtifactBucket,
		d.GitOwner,
		d.GitRepo,
		"branches",
		d.GitBranch,
		d.GitSHA1 + ".zip",
	}, "/")
}

// StateMachineName — имя графа в подложке, одно на репозиторий.
func (d DeploymentInfo) StateMachineName() string {
	return "deployment-" + NormalizeName(d.GitRepo)
}

// ExecutionName строит уникальное имя запуска из sha, ветки и времени.
//
// Время сохраняется всегда: при превышении длины укорачивается
// начало имени (ветка, затем sha).
func (d DeploymentInfo) ExecutionName(at time.Time) string {
	suffix := "-" + at.UTC().Format("20060102T150405Z")
	prefix := NormalizeName(d.GitSHA1 + "-" + d.GitBranch)
	if limit := MaxExecutionNameLength - len(suffix); len(prefix) > limit {
		prefix = prefix[:limit]
	}
	return prefix + suffix
}

// ExecutionInput — вход запуска: DeploymentInfo вместе с artifact_key.
func (d DeploymentInfo) ExecutionInput() ([]byte, error) {
	return json.Marshal(struct {
		DeploymentInfo
		ArtifactKey string `json:"artifact_key"`
	}{d, d.ArtifactKey()})
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// NormalizeName заменяет небезопасные для имён подложки символы на "-".
func NormalizeName(s string) string {
	return unsafeNameChars.ReplaceAllString(s, "-")
}

// Deployment — запись об одном деплое.
//
// Жизненный цикл описан в DeploymentStatus. Source заполнен, если деплой
// запущен указателем на объект; Info заполняется после его чтения.
type Deployment struct {
	ID uuid.UUID `json:"id"`

	Status DeploymentStatus `json:"status"`

	// Source — указатель на объект с DeploymentInfo (может быть nil).
	Source *ObjectPointer `json:"source,omitempty"`

	// Info — данные пуша.
	Info DeploymentInfo `json:"info"`

	StateMachineARN string `json:"state_machine_arn,omitempty"`
	ExecutionName   string `json:"execution_name,omitempty"`
	ExecutionARN    string `json:"execution_arn,omitempty"`

	// Definition — скомпилированный граф (JSON), как он был зарегистрирован.
	Definition json.RawMessage `json:"definition,omitempty"`

	Error string `json:"error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewDeployment создаёт запись в статусе PENDING.
func NewDeployment(info DeploymentInfo, source *ObjectPointer) *Deployment {
	return &Deployment{
		ID:        uuid.New(),
		Status:    DeploymentStatusPending,
		Source:    source,
		Info:      info,
		CreatedAt: time.Now().UTC(),
	}
}

// IsFinished возвращает true для финального статуса.
func (d *Deployment) IsFinished() bool {
	return d.Status.IsTerminal()
}

// MarkCompiled фиксирует зарегистрированный граф.
func (d *Deployment) MarkCompiled(stateMachineARN string, definition []byte) {
	d.Status = DeploymentStatusCompiled
	d.StateMachineARN = stateMachineARN
	d.Definition = definition
}

// MarkRunning фиксирует запущенный execution.
func (d *Deployment) MarkRunning(executionName, executionARN string, startedAt time.Time) {
	d.Status = DeploymentStatusRunning
	d.ExecutionName = executionName
	d.ExecutionARN = executionARN
	at := startedAt.UTC()
	d.StartedAt = &at
}

// MarkFinished переводит деплой в финальный статус.
func (d *Deployment) MarkFinished(status DeploymentStatus, errMsg string) {
	now := time.Now().UTC()
	d.Status = status
	d.FinishedAt = &now
	d.Error = errMsg
}

// MarkFailed — MarkFinished с FAILED.
func (d *Deployment) MarkFailed(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	d.MarkFinished(DeploymentStatusFailed, msg)
}

// Duration возвращает длительность выполнения или 0.
func (d *Deployment) Duration() time.Duration {
	if d.StartedAt == nil || d.FinishedAt == nil {
		return 0
	}
	return d.FinishedAt.Sub(*d.StartedAt)
}
