package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// NewDeploymentCmd создаёт группу команд для просмотра деплоев.
func NewDeploymentCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deployment",
		Aliases: []string{"deployments"},
		Short:   "Inspect deployments",
	}

	cmd.AddCommand(
		newDeploymentListCmd(clientFn, outputFn),
		newDeploymentShowCmd(clientFn, outputFn),
		newDeploymentDefinitionCmd(clientFn, outputFn),
	)

	return cmd
}

var deploymentHeaders = []string{"ID", "REPO", "BRANCH", "SHA", "STATUS", "CREATED"}

func deploymentRow(out *Output, d DeploymentResponse) []string {
	return []string{d.ID, valueOr(d.Repo, "-"), valueOr(d.Branch, "-"), shortSHA(d.SHA), out.Status(d.Status), d.CreatedAt}
}

func newDeploymentListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListDeploymentsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deployments",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			opts.Status = strings.ToUpper(opts.Status)
			deployments, err := client.ListDeployments(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(deployments))
			for i, d := range deployments {
				rows[i] = deploymentRow(out, d)
			}

			out.Print(deploymentHeaders, rows, deployments)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Repo, "repo", "", "Filter by repository name")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (PENDING, COMPILED, RUNNING, SUCCEEDED, FAILED, ABORTED)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of results to skip")

	return cmd
}

func newDeploymentShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show DEPLOYMENT_ID",
		Short: "Show deployment details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			d, err := client.GetDeployment(args[0])
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(d)
				return nil
			}

			source := "-"
			if d.Source != nil {
				source = d.Source.Bucket + "/" + d.Source.Key
			}
			out.Table([]string{"FIELD", "VALUE"}, [][]string{
				{"ID", d.ID},
				{"Status", out.Status(d.Status)},
				{"Repo", valueOr(d.Repo, "-")},
				{"Branch", valueOr(d.Branch, "-")},
				{"SHA", valueOr(d.SHA, "-")},
				{"User", valueOr(d.User, "-")},
				{"Source", source},
				{"State machine", valueOr(d.StateMachineARN, "-")},
				{"Execution", valueOr(d.ExecutionARN, "-")},
				{"Created", d.CreatedAt},
				{"Started", valueOr(d.StartedAt, "-")},
				{"Finished", valueOr(d.FinishedAt, "-")},
				{"Error", valueOr(d.Error, "-")},
			})
			return nil
		},
	}
}

func newDeploymentDefinitionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "definition DEPLOYMENT_ID",
		Short: "Print the compiled state machine definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			definition, err := clientFn().GetDefinition(args[0])
			if err != nil {
				return err
			}
			outputFn().RawJSON(definition)
			return nil
		},
	}
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return valueOr(sha, "-")
}
