package sidecar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultMetadataTimeout = 5 * time.Second
	maxMetadataBody        = 1 << 20
)

// Ключи LogOptions драйвера awslogs.
const (
	LogOptionGroup  = "awslogs-group"
	LogOptionRegion = "awslogs-region"
	LogOptionStream = "awslogs-stream"
)

// ContainerMetadata — контейнер в ответе task metadata endpoint v4.
type ContainerMetadata struct {
	Name        string            `json:"Name"`
	DockerName  string            `json:"DockerName,omitempty"`
	Image       string            `json:"Image,omitempty"`
	KnownStatus string            `json:"KnownStatus,omitempty"`
	ExitCode    *int              `json:"ExitCode,omitempty"`
	LogDriver   string            `json:"LogDriver,omitempty"`
	LogOptions  map[string]string `json:"LogOptions,omitempty"`
}

// TaskMetadata — ответ GET {metadata}/task.
type TaskMetadata struct {
	Cluster    string              `json:"Cluster,omitempty"`
	TaskARN    string              `json:"TaskARN,omitempty"`
	Family     string              `json:"Family,omitempty"`
	Containers []ContainerMetadata `json:"Containers"`
}

// Container ищет контейнер по имени.
func (t *TaskMetadata) Container(name string) (ContainerMetadata, error) {
	for _, c := range t.Containers {
		if c.Name == name {
			return c, nil
		}
	}
	return ContainerMetadata{}, fmt.Errorf("%w: %q", ErrContainerNotFound, name)
}

// MetadataSource отдаёт метаданные текущей задачи.
type MetadataSource interface {
	Task(ctx context.Context) (*TaskMetadata, error)
}

// MetadataClient — клиент task metadata endpoint v4.
type MetadataClient struct {
	baseURL string
	client  *http.Client
}

// NewMetadataClient создаёт клиент для ECS_CONTAINER_METADATA_URI_V4.
// client может быть nil.
func NewMetadataClient(baseURL string, client *http.Client) *MetadataClient {
	if client == nil {
		client = &http.Client{Timeout: defaultMetadataTimeout}
	}
	return &MetadataClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Task запрашивает метаданные задачи.
func (c *MetadataClient) Task(ctx context.Context) (*TaskMetadata, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: metadata endpoint is not configured", ErrMetadata)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/task", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrMetadata, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadata, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrMetadata, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrMetadata, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var task TaskMetadata
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrMetadata, err)
	}
	return &task, nil
}
