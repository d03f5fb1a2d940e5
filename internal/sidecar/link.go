package sidecar

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Output — структурированный результат, отправляемый в отчёте.
type Output struct {
	LogStream string `json:"log_stream"`
}

// JSON сериализует Output.
func (o Output) JSON() (string, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("marshal output: %w", err)
	}
	return string(b), nil
}

// LogStreamLink строит ссылку на поток логов в консоли CloudWatch.
// "/" в группе и потоке кодируется как "$252F".
func LogStreamLink(region, group, stream string) string {
	return fmt.Sprintf(
		"https://%s.console.aws.amazon.com/cloudwatch/home?region=%s#logsV2:log-groups/log-group/%s/log-events/%s",
		region, region, escapeLogPath(group), escapeLogPath(stream),
	)
}

// ContainerLogLink строит ссылку из LogOptions контейнера.
func ContainerLogLink(c ContainerMetadata) (string, error) {
	region := c.LogOptions[LogOptionRegion]
	group := c.LogOptions[LogOptionGroup]
	stream := c.LogOptions[LogOptionStream]

	if region == "" || group == "" || stream == "" {
		return "", fmt.Errorf("container %q has incomplete log options: %v", c.Name, c.LogOptions)
	}
	return LogStreamLink(region, group, stream), nil
}

func escapeLogPath(s string) string {
	return strings.ReplaceAll(s, "/", "$252F")
}
