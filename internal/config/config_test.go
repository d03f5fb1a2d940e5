package config

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/conveyor/internal/domain"
)

func envFrom(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func fullEnv() map[string]string {
	return map[string]string{
		"AWS_REGION":             "eu-west-1",
		"VERSION_FUNCTION_ARN":   "arn:aws:lambda:eu-west-1:111111111111:function:set-version",
		"VERSION_ROLE_ARN":       "arn:aws:iam::111111111111:role/set-version",
		"VERSION_SSM_PREFIX":     "artifact-version",
		"ARTIFACT_BUCKET":        "artifacts",
		"DEPLOY_ACCOUNTS":        `{"Service": "111111111111", "test": "222222222222", "prod": "333333333333"}`,
		"ECS_CLUSTER":            "deployments",
		"SUBNETS":                `["subnet-a", "subnet-b"]`,
		"TASK_ROLE_ARN":          "arn:aws:iam::111111111111:role/task",
		"EXECUTION_ROLE_ARN":     "arn:aws:iam::111111111111:role/execution",
		"LOG_GROUP":              "deployments",
		"SIDECAR_IMAGE":          "conveyor/sidecar:latest",
		"STATE_MACHINE_ROLE_ARN": "arn:aws:iam::111111111111:role/sfn",
	}
}

// --- Config Tests ---

func TestLoad_FromEnv(t *testing.T) {
	cfg, err := Load(envFrom(fullEnv()))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, []string{"subnet-a", "subnet-b"}, cfg.Subnets)

	// Ключи аккаунтов приводятся к нижнему регистру
	assert.Equal(t, "111111111111", cfg.DeployAccounts["service"])
	assert.Len(t, cfg.DeployAccounts, 3)

	assert.Equal(t, DefaultConsistencyDelay, cfg.ConsistencyDelay)
	assert.Equal(t, DefaultSyncInterval, cfg.SyncInterval)
	assert.Equal(t, DefaultDBURL, cfg.DBURL)
	assert.Equal(t, DefaultAPIPort, cfg.APIPort)
}

func TestLoad_Durations(t *testing.T) {
	env := fullEnv()
	env["CONSISTENCY_DELAY"] = "3s"
	env["SYNC_INTERVAL"] = "1m"

	cfg, err := Load(envFrom(env))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.ConsistencyDelay)
	assert.Equal(t, time.Minute, cfg.SyncInterval)

	env["SYNC_INTERVAL"] = "soon"
	_, err = Load(envFrom(env))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYNC_INTERVAL")
}

func TestLoad_InvalidJSON(t *testing.T) {
	env := fullEnv()
	env["SUBNETS"] = "subnet-a,subnet-b"

	_, err := Load(envFrom(env))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUBNETS")
}

func TestLoad_FileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conveyor.yaml")
	content := `
region: us-east-1
ecs_cluster: from-file
sidecar_image: file/sidecar:1
consistency_delay: 5s
subnets: [subnet-file]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	env := map[string]string{
		ConfigFileEnv: path,
		"AWS_REGION":  "eu-north-1",
	}

	cfg, err := Load(envFrom(env))
	require.NoError(t, err)

	// Окружение приоритетнее файла
	assert.Equal(t, "eu-north-1", cfg.Region)
	// Файл заполняет пропуски
	assert.Equal(t, "from-file", cfg.Cluster)
	assert.Equal(t, "file/sidecar:1", cfg.SidecarImage)
	assert.Equal(t, []string{"subnet-file"}, cfg.Subnets)
	assert.Equal(t, 5*time.Second, cfg.ConsistencyDelay)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(envFrom(map[string]string{ConfigFileEnv: "/nonexistent/conveyor.yaml"}))
	require.Error(t, err)
}

func TestValidate_ReportsAllFields(t *testing.T) {
	cfg, err := Load(envFrom(map[string]string{"AWS_REGION": "eu-west-1"}))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))

	fields := verrs.Fields()
	assert.NotContains(t, fields, "AWS_REGION")
	assert.Contains(t, fields, "ECS_CLUSTER")
	assert.Contains(t, fields, "SUBNETS")
	assert.Contains(t, fields, "DEPLOY_ACCOUNTS")
	assert.Contains(t, fields, "SIDECAR_IMAGE")
}

// --- SidecarConfig Tests ---

func TestLoadSidecar(t *testing.T) {
	cfg, err := LoadSidecar(envFrom(map[string]string{
		"TASK_TOKEN":                    "token-1",
		"MAIN_CONTAINER_NAME":           "deploy_terraform",
		"ECS_CONTAINER_METADATA_URI_V4": "http://169.254.170.2/v4/abc",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultReportTimeout, cfg.ReportTimeout)
}

func TestLoadSidecar_MissingToken(t *testing.T) {
	_, err := LoadSidecar(envFrom(map[string]string{"MAIN_CONTAINER_NAME": "main"}))
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestLoadSidecar_TokenWithoutMetadata(t *testing.T) {
	// Токен есть: загрузка успешна, Validate сообщает о пропусках
	cfg, err := LoadSidecar(envFrom(map[string]string{
		"TASK_TOKEN":     "token-1",
		"REPORT_TIMEOUT": "5s",
	}))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.ReportTimeout)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAIN_CONTAINER_NAME")
	assert.Contains(t, err.Error(), "ECS_CONTAINER_METADATA_URI_V4")
}

// --- Deployment Tests ---

const validDeployment = `
flow:
  - [service, test, stage]
  - prod
deployment:
  steps:
    - bump_versions
    - deploy_terraform:
        image: vydev/terraform:1.1.0
applications:
  ecr: [api]
  lambda: [worker]
`

func TestParseDeployment(t *testing.T) {
	dep, err := ParseDeployment([]byte(validDeployment))
	require.NoError(t, err)

	require.Len(t, dep.Flow, 2)
	assert.Equal(t, []string{"service", "test", "stage"}, dep.Flow[0].Environments)
	assert.True(t, dep.Flow[0].Parallel)
	assert.Equal(t, "prod", dep.Flow[1].Name())

	steps := dep.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, StepRef{Name: "bump_versions"}, steps[0])
	assert.Equal(t, "deploy_terraform", steps[1].Name)
	assert.Equal(t, "vydev/terraform:1.1.0", steps[1].Params["image"])

	assert.Equal(t, []string{"api"}, dep.Applications.ECR)
	assert.Equal(t, []string{"worker"}, dep.Applications.Lambda)
	assert.Empty(t, dep.Applications.Frontend)
}

func TestParseDeployment_StepWithoutParams(t *testing.T) {
	doc := `
flow: [prod]
deployment:
  steps:
    - deploy_terraform:
`
	dep, err := ParseDeployment([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "deploy_terraform", dep.Steps()[0].Name)
	assert.Empty(t, dep.Steps()[0].Params)
}

func TestParseDeployment_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "missing flow",
			doc:  "deployment:\n  steps: [bump_versions]\n",
		},
		{
			name: "empty steps",
			doc:  "flow: [prod]\ndeployment:\n  steps: []\n",
		},
		{
			name: "step with two types",
			doc:  "flow: [prod]\ndeployment:\n  steps:\n    - {a: {}, b: {}}\n",
		},
		{
			name: "nested group",
			doc:  "flow: [[a, [b]]]\ndeployment:\n  steps: [bump_versions]\n",
		},
		{
			name: "unknown application category",
			doc:  "flow: [prod]\ndeployment:\n  steps: [bump_versions]\napplications:\n  docker: [x]\n",
		},
		{
			name: "environment with slash",
			doc:  "flow: [prod/eu]\ndeployment:\n  steps: [bump_versions]\n",
		},
		{
			name: "not yaml",
			doc:  "flow: [prod\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDeployment([]byte(tt.doc))
			require.ErrorIs(t, err, ErrInvalidDeployment)
		})
	}
}

func TestParseDeployment_DuplicateEnvironment(t *testing.T) {
	doc := `
flow:
  - [test, stage]
  - stage
deployment:
  steps: [bump_versions]
`
	_, err := ParseDeployment([]byte(doc))
	require.ErrorIs(t, err, domain.ErrDuplicateEnvironment)

	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
}

// --- Artifact Tests ---

func buildArtifact(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestLoadArtifact(t *testing.T) {
	artifact := buildArtifact(t, map[string]string{
		"terraform/main.tf":  "# infra",
		ArtifactConfigPath:   validDeployment,
		".deployment/README": "ignored",
	})

	dep, err := LoadArtifact(artifact)
	require.NoError(t, err)
	assert.Len(t, dep.Flow.Environments(), 4)
}

func TestLoadArtifact_MissingConfig(t *testing.T) {
	artifact := buildArtifact(t, map[string]string{"main.tf": ""})

	_, err := LoadArtifact(artifact)
	require.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoadArtifact_NotZip(t *testing.T) {
	_, err := LoadArtifact([]byte("definitely not a zip"))
	require.Error(t, err)
}
