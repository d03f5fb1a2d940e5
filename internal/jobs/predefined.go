package jobs

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"dario.cat/mergo"

	"github.com/shaiso/conveyor/internal/config"
	"github.com/shaiso/conveyor/internal/domain"
)

// Имена предопределённых типов шагов.
const (
	TypeBumpVersions    = "bump_versions"
	TypeDeployTerraform = "deploy_terraform"
	TypeRunTask         = "run_task"
	TypeInvokeFunction  = "invoke_function"
)

// Значения по умолчанию предопределённых шагов.
const (
	BumpVersionsName    = "Bump Versions"
	DeployTerraformName = "Deploy Terraform"
	VersionFetchName    = "Get Latest Artifact Versions"

	TerraformImage   = "vydev/terraform:1.0.8"
	TerraformCommand = "terraform init -input=false && terraform apply -input=false -auto-approve"
)

// bumpVersions — записывает версии, полученные ведущим шагом, в
// аккаунт окружения.
func bumpVersions(_ context.Context, req *Request) (domain.Job, error) {
	account, ok := req.Settings.DeployAccounts[strings.ToLower(req.Environment)]
	if !ok || account == "" {
		return domain.Job{}, domain.NewConfigurationError(req.Environment, "DEPLOY_ACCOUNTS",
			fmt.Sprintf("no deploy account for environment %q", strings.ToLower(req.Environment)),
			domain.ErrMissingParameter)
	}

	payload := versionPayload(req.Settings, req.Info, config.Applications{}, false)
	payload["account_id"] = account
	payload["versions.$"] = "$.versions.Payload"

	params, err := withOverrides(TypeBumpVersions, map[string]any{
		"name":     BumpVersionsName,
		"function": req.Settings.VersionFunctionARN,
		"payload":  payload,
	}, req.Params, "name", "function", "payload")
	if err != nil {
		return domain.Job{}, err
	}

	return functionCallFrom(params)
}

// deployTerraform — terraform apply в контейнере.
func deployTerraform(ctx context.Context, req *Request) (domain.Job, error) {
	params, err := withOverrides(TypeDeployTerraform, map[string]any{
		"name":              DeployTerraformName,
		"image":             TerraformImage,
		"command":           TerraformCommand,
		"log_stream_prefix": defaultLogPrefix(req),
		"environment":       map[string]any{"TF_IN_AUTOMATION": "true"},
	}, req.Params, "name", "image", "command", "log_stream_prefix", "environment")
	if err != nil {
		return domain.Job{}, err
	}

	return externalTaskFrom(ctx, req, params)
}

// runTask — произвольная контейнерная задача.
func runTask(ctx context.Context, req *Request) (domain.Job, error) {
	params, err := withOverrides(TypeRunTask, map[string]any{
		"log_stream_prefix": defaultLogPrefix(req),
	}, req.Params, "name", "image", "command", "log_stream_prefix", "environment")
	if err != nil {
		return domain.Job{}, err
	}
	for _, key := range []string{"name", "image", "command"} {
		if _, ok := params[key]; !ok {
			return domain.Job{}, domain.MissingParameter(req.Environment, TypeRunTask, key)
		}
	}

	return externalTaskFrom(ctx, req, params)
}

// invokeFunction — произвольный вызов функции.
func invokeFunction(_ context.Context, req *Request) (domain.Job, error) {
	params, err := withOverrides(TypeInvokeFunction, map[string]any{}, req.Params, "name", "function", "payload")
	if err != nil {
		return domain.Job{}, err
	}
	for _, key := range []string{"name", "function"} {
		if _, ok := params[key]; !ok {
			return domain.Job{}, domain.MissingParameter(req.Environment, TypeInvokeFunction, key)
		}
	}

	return functionCallFrom(params)
}

// VersionFetch строит ведущий шаг получения последних версий артефактов.
func VersionFetch(s Settings, info domain.DeploymentInfo, apps config.Applications) (domain.Job, error) {
	return NewFunctionCall(FunctionCallSpec{
		Name:     VersionFetchName,
		Function: s.VersionFunctionARN,
		Payload:  versionPayload(s, info, apps, true),
	})
}

// versionPayload — общий payload функции версий.
// get=true читает последние версии, get=false записывает их.
func versionPayload(s Settings, info domain.DeploymentInfo, apps config.Applications, get bool) map[string]any {
	prefix := info.GitOwner + "/" + info.GitRepo
	return map[string]any{
		"role_to_assume":        s.VersionRoleARN,
		"ssm_prefix":            s.VersionSSMPrefix,
		"get_versions":          get,
		"set_versions":          !get,
		"ecr_applications":      names(apps.ECR),
		"lambda_applications":   names(apps.Lambda),
		"lambda_s3_bucket":      s.ArtifactBucket,
		"lambda_s3_prefix":      prefix + "/lambdas",
		"frontend_applications": names(apps.Frontend),
		"frontend_s3_bucket":    s.ArtifactBucket,
		"frontend_s3_prefix":    prefix + "/frontends",
	}
}

func names(list []string) []string {
	return append([]string{}, list...)
}

func defaultLogPrefix(req *Request) string {
	return req.Info.GitRepo + "/" + strings.ToLower(req.Environment)
}

// withOverrides накладывает переопределения на значения по умолчанию.
// Неизвестные ключи — ошибка конфигурации, а не молчаливый пропуск.
func withOverrides(jobType string, defaults, overrides map[string]any, allowed ...string) (map[string]any, error) {
	known := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		known[k] = true
	}

	var unknown []string
	for k := range overrides {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, domain.NewConfigurationError("", jobType,
			fmt.Sprintf("unknown parameters %v (allowed: %v)", unknown, allowed), domain.ErrInvalidParameter)
	}

	params := domain.CloneMap(defaults)
	if len(overrides) > 0 {
		if err := mergo.Merge(&params, domain.CloneMap(overrides), mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge %s parameters: %w", jobType, err)
		}
	}
	return params, nil
}

func functionCallFrom(params map[string]any) (domain.Job, error) {
	name, err := stringParam(params, "name")
	if err != nil {
		return domain.Job{}, err
	}
	function, err := stringParam(params, "function")
	if err != nil {
		return domain.Job{}, err
	}

	var payload map[string]any
	if raw, ok := params["payload"]; ok && raw != nil {
		payload, ok = raw.(map[string]any)
		if !ok {
			return domain.Job{}, domain.NewConfigurationError("", "payload",
				fmt.Sprintf("payload of %q must be a mapping, got %T", name, raw), domain.ErrInvalidParameter)
		}
	}

	return NewFunctionCall(FunctionCallSpec{Name: name, Function: function, Payload: payload})
}

func externalTaskFrom(ctx context.Context, req *Request, params map[string]any) (domain.Job, error) {
	spec := ExternalTaskSpec{}
	var err error
	if spec.Name, err = stringParam(params, "name"); err != nil {
		return domain.Job{}, err
	}
	if spec.Image, err = stringParam(params, "image"); err != nil {
		return domain.Job{}, err
	}
	if spec.Command, err = stringParam(params, "command"); err != nil {
		return domain.Job{}, err
	}
	if spec.LogStreamPrefix, err = stringParam(params, "log_stream_prefix"); err != nil {
		return domain.Job{}, err
	}
	if spec.Environment, err = stringMapParam(params, "environment"); err != nil {
		return domain.Job{}, err
	}

	return NewExternalTask(ctx, req.Registrar, req.Settings, spec)
}

// stringParam возвращает строковый параметр; отсутствие даёт "".
func stringParam(params map[string]any, key string) (string, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", domain.NewConfigurationError("", key,
			fmt.Sprintf("parameter %q must be a string, got %T", key, raw), domain.ErrInvalidParameter)
	}
	return s, nil
}

// stringMapParam приводит значения словаря к строкам
// (YAML отдаёт числа и bool как есть).
func stringMapParam(params map[string]any, key string) (map[string]string, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, domain.NewConfigurationError("", key,
			fmt.Sprintf("parameter %q must be a mapping, got %T", key, raw), domain.ErrInvalidParameter)
	}

	out := make(map[string]string, len(m))
	for k, v := range m {
		if v == nil {
			out[k] = ""
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}
