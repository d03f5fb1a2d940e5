package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, клиент API не импортирует internal/api) ---

// ObjectPointer — указатель на объект с данными пуша.
type ObjectPointer struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	VersionID string `json:"version_id,omitempty"`
}

// DeploymentResponse — деплой из API.
type DeploymentResponse struct {
	ID              string         `json:"id"`
	Status          string         `json:"status"`
	Repo            string         `json:"repo,omitempty"`
	Branch          string         `json:"branch,omitempty"`
	SHA             string         `json:"sha,omitempty"`
	User            string         `json:"user,omitempty"`
	Source          *ObjectPointer `json:"source,omitempty"`
	StateMachineARN string         `json:"state_machine_arn,omitempty"`
	ExecutionName   string         `json:"execution_name,omitempty"`
	ExecutionARN    string         `json:"execution_arn,omitempty"`
	HasDefinition   bool           `json:"has_definition"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       string         `json:"created_at"`
	StartedAt       string         `json:"started_at,omitempty"`
	FinishedAt      string         `json:"finished_at,omitempty"`
}

// --- Request types ---

// DeploymentInfo — данные пуша.
type DeploymentInfo struct {
	GitOwner       string `json:"git_owner"`
	GitRepo        string `json:"git_repo"`
	GitBranch      string `json:"git_branch"`
	GitUser        string `json:"git_user"`
	GitSHA1        string `json:"git_sha1"`
	ArtifactBucket string `json:"artifact_bucket"`
}

// CreateDeploymentRequest — триггер деплоя.
type CreateDeploymentRequest struct {
	Info   *DeploymentInfo `json:"info,omitempty"`
	Source *ObjectPointer  `json:"source,omitempty"`
}

// ListDeploymentsOpts — параметры фильтрации деплоев.
type ListDeploymentsOpts struct {
	Repo   string
	Status string
	Limit  int
	Offset int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для conveyor API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Deployments ---

// ListDeployments возвращает деплои с фильтрацией.
func (c *Client) ListDeployments(opts ListDeploymentsOpts) ([]DeploymentResponse, error) {
	params := url.Values{}
	if opts.Repo != "" {
		params.Set("repo", opts.Repo)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var deployments []DeploymentResponse
	err := c.list("/api/v1/deployments", params, &deployments)
	return deployments, err
}

// CreateDeployment отправляет триггер деплоя.
func (c *Client) CreateDeployment(req CreateDeploymentRequest) (*DeploymentResponse, error) {
	var d DeploymentResponse
	err := c.post("/api/v1/deployments", req, &d)
	return &d, err
}

// GetDeployment возвращает деплой по ID.
func (c *Client) GetDeployment(id string) (*DeploymentResponse, error) {
	var d DeploymentResponse
	err := c.get("/api/v1/deployments/"+url.PathEscape(id), &d)
	return &d, err
}

// GetDefinition возвращает скомпилированный граф деплоя как есть.
func (c *Client) GetDefinition(id string) (json.RawMessage, error) {
	resp, err := c.do(http.MethodGet, "/api/v1/deployments/"+url.PathEscape(id)+"/definition", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	return data, nil
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
