package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/conveyor/internal/domain"
)

// CreateDeploymentRequest — триггер деплоя: данные пуша или указатель
// на объект с ними. Задаётся ровно одно из полей.
type CreateDeploymentRequest struct {
	Info   *domain.DeploymentInfo `json:"info,omitempty"`
	Source *domain.ObjectPointer  `json:"source,omitempty"`
}

// DeploymentResponse — ответ с деплоем (без графа).
type DeploymentResponse struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`

	Repo   string `json:"repo,omitempty"`
	Branch string `json:"branch,omitempty"`
	SHA    string `json:"sha,omitempty"`
	User   string `json:"user,omitempty"`

	Source *domain.ObjectPointer `json:"source,omitempty"`

	StateMachineARN string `json:"state_machine_arn,omitempty"`
	ExecutionName   string `json:"execution_name,omitempty"`
	ExecutionARN    string `json:"execution_arn,omitempty"`
	HasDefinition   bool   `json:"has_definition"`

	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// DeploymentFromDomain конвертирует domain.Deployment в DeploymentResponse.
func DeploymentFromDomain(d domain.Deployment) DeploymentResponse {
	resp := DeploymentResponse{
		ID:              d.ID,
		Status:          string(d.Status),
		Branch:          d.Info.GitBranch,
		SHA:             d.Info.GitSHA1,
		User:            d.Info.GitUser,
		Source:          d.Source,
		StateMachineARN: d.StateMachineARN,
		ExecutionName:   d.ExecutionName,
		ExecutionARN:    d.ExecutionARN,
		HasDefinition:   len(d.Definition) > 0,
		Error:           d.Error,
		CreatedAt:       d.CreatedAt,
		StartedAt:       d.StartedAt,
		FinishedAt:      d.FinishedAt,
	}
	if d.Info.GitRepo != "" {
		resp.Repo = d.Info.GitOwner + "/" + d.Info.GitRepo
	}
	return resp
}
