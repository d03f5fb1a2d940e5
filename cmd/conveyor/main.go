// Conveyor CLI — инструмент командной строки для запуска деплоев,
// просмотра их состояния и офлайн-компиляции графа.
//
// Использование:
//
//	conveyor [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	deploy      Запросить деплой
//	deployment  Просмотр деплоев
//	compile     Скомпилировать граф без обращения к AWS
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/conveyor/internal/cli"
	"github.com/shaiso/conveyor/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "conveyor",
		Short:         "Conveyor CLI — deployment pipelines",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewDeployCmd(clientFn, outputFn),
		cli.NewDeploymentCmd(clientFn, outputFn),
		cli.NewCompileCmd(outputFn),
	)

	// Логи идут в stderr, чтобы не смешиваться с JSON графа
	ctx := telemetry.WithLogger(context.Background(), telemetry.SetupStderrLogger())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
