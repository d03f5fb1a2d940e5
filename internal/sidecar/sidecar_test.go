package sidecar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient записывает все отчёты.
type fakeClient struct {
	mu       sync.Mutex
	success  []string
	failures []Report
	err      error
	panicMsg string

	// ctxErrs — состояние контекста в момент каждого отчёта.
	ctxErrs []error
}

func (f *fakeClient) SendTaskSuccess(ctx context.Context, _ string, output string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.success = append(f.success, output)
	return f.err
}

func (f *fakeClient) SendTaskFailure(ctx context.Context, _ string, category, cause string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	f.failures = append(f.failures, Report{Error: category, Output: cause})
	return f.err
}

func (f *fakeClient) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.success) + len(f.failures)
}

// metadataFunc — MetadataSource из функции.
type metadataFunc func(ctx context.Context) (*TaskMetadata, error)

func (f metadataFunc) Task(ctx context.Context) (*TaskMetadata, error) { return f(ctx) }

func intPtr(v int) *int { return &v }

func taskWithExit(exit *int) *TaskMetadata {
	return &TaskMetadata{
		Containers: []ContainerMetadata{
			{Name: "completion-reporter"},
			{
				Name:     "deploy_terraform",
				ExitCode: exit,
				LogOptions: map[string]string{
					LogOptionGroup:  "deployments",
					LogOptionRegion: "eu-west-1",
					LogOptionStream: "trafficinfo/prod/deploy_terraform/abc",
				},
			},
		},
	}
}

func newWatcher(client *fakeClient, source MetadataSource) *Watcher {
	return New(Config{
		MainContainerName: "deploy_terraform",
		Metadata:          source,
		Reporter:          NewReporter(client, "token-1", nil),
		ReportTimeout:     time.Second,
	})
}

const expectedOutput = `{"log_stream":"https://eu-west-1.console.aws.amazon.com/cloudwatch/home?region=eu-west-1#logsV2:log-groups/log-group/deployments/log-events/trafficinfo$252Fprod$252Fdeploy_terraform$252Fabc"}`

// --- Watcher Tests ---

func TestWatcher_ExitZero(t *testing.T) {
	client := &fakeClient{}
	w := newWatcher(client, metadataFunc(func(context.Context) (*TaskMetadata, error) {
		return taskWithExit(intPtr(0)), nil
	}))

	require.NoError(t, w.Finish(context.Background()))

	require.Equal(t, 1, client.total())
	require.Len(t, client.success, 1)
	assert.Equal(t, expectedOutput, client.success[0])
}

func TestWatcher_NonZeroExit(t *testing.T) {
	client := &fakeClient{}
	w := newWatcher(client, metadataFunc(func(context.Context) (*TaskMetadata, error) {
		return taskWithExit(intPtr(2)), nil
	}))

	require.NoError(t, w.Finish(context.Background()))

	require.Equal(t, 1, client.total())
	require.Len(t, client.failures, 1)
	assert.Equal(t, ErrorNonZeroExitCode, client.failures[0].Error)
	// Cause — тот же JSON со ссылкой на лог
	assert.Equal(t, expectedOutput, client.failures[0].Output)
}

func TestWatcher_MissingExitCode(t *testing.T) {
	client := &fakeClient{}
	w := newWatcher(client, metadataFunc(func(context.Context) (*TaskMetadata, error) {
		return taskWithExit(nil), nil
	}))

	require.NoError(t, w.Finish(context.Background()))

	require.Len(t, client.failures, 1)
	assert.Equal(t, ErrorNonZeroExitCode, client.failures[0].Error)
}

func TestWatcher_CrashReportsUnknown(t *testing.T) {
	tests := []struct {
		name   string
		source MetadataSource
	}{
		{
			name: "metadata error",
			source: metadataFunc(func(context.Context) (*TaskMetadata, error) {
				return nil, ErrMetadata
			}),
		},
		{
			name: "container missing",
			source: metadataFunc(func(context.Context) (*TaskMetadata, error) {
				return &TaskMetadata{Containers: []ContainerMetadata{{Name: "other"}}}, nil
			}),
		},
		{
			name: "no log options",
			source: metadataFunc(func(context.Context) (*TaskMetadata, error) {
				return &TaskMetadata{Containers: []ContainerMetadata{{Name: "deploy_terraform", ExitCode: intPtr(0)}}}, nil
			}),
		},
		{
			name: "panic mid-sequence",
			source: metadataFunc(func(context.Context) (*TaskMetadata, error) {
				panic("unexpected metadata shape")
			}),
		},
		{
			name:   "no metadata source",
			source: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{}
			w := newWatcher(client, tt.source)

			err := w.Finish(context.Background())
			require.Error(t, err)

			require.Equal(t, 1, client.total(), "exactly one report expected")
			require.Len(t, client.failures, 1)
			assert.Equal(t, ErrorUnknown, client.failures[0].Error)
			assert.Equal(t, UnknownCause, client.failures[0].Output)
		})
	}
}

func TestWatcher_MetadataTimeoutStillReportsOnLiveContext(t *testing.T) {
	client := &fakeClient{}
	// Метаданные висят, пока не истечёт их контекст
	source := metadataFunc(func(ctx context.Context) (*TaskMetadata, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	w := New(Config{
		MainContainerName: "deploy_terraform",
		Metadata:          source,
		Reporter:          NewReporter(client, "token-1", nil),
		ReportTimeout:     200 * time.Millisecond,
	})

	started := time.Now()
	err := w.Finish(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(started), time.Second)

	require.Len(t, client.failures, 1)
	assert.Equal(t, ErrorUnknown, client.failures[0].Error)
	require.Len(t, client.ctxErrs, 1)
	assert.NoError(t, client.ctxErrs[0], "report must be sent on a live context")
}

func TestReportReserve(t *testing.T) {
	assert.Equal(t, 50*time.Millisecond, reportReserve(200*time.Millisecond))
	assert.Equal(t, 5*time.Second, reportReserve(20*time.Second))
	assert.Equal(t, maxReportReserve, reportReserve(time.Hour))
}

func TestWatcher_PanicDuringReportIsNotRetried(t *testing.T) {
	client := &fakeClient{panicMsg: "client exploded"}
	w := newWatcher(client, metadataFunc(func(context.Context) (*TaskMetadata, error) {
		return taskWithExit(intPtr(0)), nil
	}))

	err := w.Finish(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyReported)

	// Отчёт Unknown не отправляется: токен уже израсходован
	assert.Empty(t, client.failures)
}

func TestWatcher_ReportErrorIsNotRetried(t *testing.T) {
	client := &fakeClient{err: ErrTokenRejected}
	w := newWatcher(client, metadataFunc(func(context.Context) (*TaskMetadata, error) {
		return taskWithExit(intPtr(0)), nil
	}))

	err := w.Finish(context.Background())
	require.ErrorIs(t, err, ErrTokenRejected)
	assert.Equal(t, 1, client.total())
}

func TestWatcher_Run(t *testing.T) {
	client := &fakeClient{}
	var queried sync.WaitGroup
	queried.Add(1)

	w := newWatcher(client, metadataFunc(func(context.Context) (*TaskMetadata, error) {
		queried.Done()
		return taskWithExit(intPtr(0)), nil
	}))

	notify := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background(), notify) }()

	// До сигнала отчёта нет
	select {
	case <-done:
		t.Fatal("watcher returned before termination signal")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 0, client.total())

	notify <- syscall.SIGTERM

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not finish after signal")
	}
	queried.Wait()
	assert.Len(t, client.success, 1)
}

func TestWatcher_RunContextCancelledStillReports(t *testing.T) {
	client := &fakeClient{}
	w := newWatcher(client, metadataFunc(func(ctx context.Context) (*TaskMetadata, error) {
		// Контекст отчёта не отменён вместе с родительским
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return taskWithExit(intPtr(1)), nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, w.Run(ctx, make(chan os.Signal)))
	require.Len(t, client.failures, 1)
	assert.Equal(t, ErrorNonZeroExitCode, client.failures[0].Error)
}

// --- Reporter Tests ---

func TestReporter_ExactlyOnce(t *testing.T) {
	client := &fakeClient{}
	r := NewReporter(client, "token-1", nil)

	require.NoError(t, r.Report(context.Background(), Report{Success: true, Output: "{}"}))
	assert.True(t, r.Reported())

	err := r.Report(context.Background(), Report{Error: ErrorUnknown, Output: UnknownCause})
	assert.ErrorIs(t, err, ErrAlreadyReported)
	assert.Equal(t, 1, client.total())
}

func TestReporter_Concurrent(t *testing.T) {
	client := &fakeClient{}
	r := NewReporter(client, "token-1", nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var already int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if errors.Is(r.Report(context.Background(), Report{Success: true}), ErrAlreadyReported) {
				mu.Lock()
				already++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, client.total())
	assert.Equal(t, 9, already)
}

// --- Metadata Tests ---

func TestMetadataClient_Task(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v4/abc/task", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"Cluster": "deployments",
			"TaskARN": "arn:aws:ecs:eu-west-1:111111111111:task/deployments/abc",
			"Containers": [
				{"Name": "completion-reporter", "KnownStatus": "RUNNING"},
				{"Name": "deploy_terraform", "KnownStatus": "STOPPED", "ExitCode": 0,
				 "LogDriver": "awslogs",
				 "LogOptions": {"awslogs-group": "/ecs/deploy", "awslogs-region": "eu-west-1", "awslogs-stream": "repo/prod/x"}}
			]
		}`))
	}))
	defer server.Close()

	client := NewMetadataClient(server.URL+"/v4/abc/", nil)
	task, err := client.Task(context.Background())
	require.NoError(t, err)

	c, err := task.Container("deploy_terraform")
	require.NoError(t, err)
	require.NotNil(t, c.ExitCode)
	assert.Equal(t, 0, *c.ExitCode)

	reporter, err := task.Container("completion-reporter")
	require.NoError(t, err)
	assert.Nil(t, reporter.ExitCode)

	_, err = task.Container("missing")
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestMetadataClient_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken/task" {
			_, _ = w.Write([]byte("not json"))
			return
		}
		http.Error(w, "gone", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewMetadataClient(server.URL+"/down", nil).Task(context.Background())
	assert.ErrorIs(t, err, ErrMetadata)

	_, err = NewMetadataClient(server.URL+"/broken", nil).Task(context.Background())
	assert.ErrorIs(t, err, ErrMetadata)

	_, err = NewMetadataClient("", nil).Task(context.Background())
	assert.ErrorIs(t, err, ErrMetadata)
}

// --- Link Tests ---

func TestLogStreamLink(t *testing.T) {
	got := LogStreamLink("eu-west-1", "/ecs/deploy", "repo/prod/abc")
	want := "https://eu-west-1.console.aws.amazon.com/cloudwatch/home?region=eu-west-1" +
		"#logsV2:log-groups/log-group/$252Fecs$252Fdeploy/log-events/repo$252Fprod$252Fabc"
	assert.Equal(t, want, got)
}
