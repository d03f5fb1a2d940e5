package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewDeployCmd создаёт команду отправки триггера деплоя.
//
// Триггер задаётся либо данными пуша (--owner, --repo, --branch, --sha,
// --artifact-bucket), либо указателем на объект с ними (--bucket, --key).
func NewDeployCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var info DeploymentInfo
	var pointer ObjectPointer

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Trigger a deployment",
		Example: `  conveyor deploy --owner nsbno --repo trafficinfo --branch main --sha 0123abc --artifact-bucket artifacts
  conveyor deploy --bucket triggers --key nsbno/trafficinfo/main.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := deployRequest(info, pointer)
			if err != nil {
				return err
			}

			client := clientFn()
			out := outputFn()

			d, err := client.CreateDeployment(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Deployment accepted: %s", d.ID))
			out.Print(deploymentHeaders, [][]string{deploymentRow(out, *d)}, d)
			return nil
		},
	}

	cmd.Flags().StringVar(&info.GitOwner, "owner", "", "Repository owner")
	cmd.Flags().StringVar(&info.GitRepo, "repo", "", "Repository name")
	cmd.Flags().StringVar(&info.GitBranch, "branch", "", "Branch name")
	cmd.Flags().StringVar(&info.GitSHA1, "sha", "", "Commit SHA")
	cmd.Flags().StringVar(&info.GitUser, "user", "", "User who pushed")
	cmd.Flags().StringVar(&info.ArtifactBucket, "artifact-bucket", "", "Bucket holding the push artifact")

	cmd.Flags().StringVar(&pointer.Bucket, "bucket", "", "Bucket of the trigger object")
	cmd.Flags().StringVar(&pointer.Key, "key", "", "Key of the trigger object")
	cmd.Flags().StringVar(&pointer.VersionID, "version-id", "", "Version of the trigger object")

	cmd.MarkFlagsMutuallyExclusive("repo", "key")
	cmd.MarkFlagsRequiredTogether("bucket", "key")

	return cmd
}

// deployRequest собирает триггер из флагов.
func deployRequest(info DeploymentInfo, pointer ObjectPointer) (CreateDeploymentRequest, error) {
	if pointer.Key != "" {
		return CreateDeploymentRequest{Source: &pointer}, nil
	}
	if info == (DeploymentInfo{}) {
		return CreateDeploymentRequest{}, errors.New("either --repo with push details or --bucket and --key is required")
	}

	var missing []string
	for _, f := range []struct{ flag, value string }{
		{"--owner", info.GitOwner},
		{"--repo", info.GitRepo},
		{"--branch", info.GitBranch},
		{"--sha", info.GitSHA1},
		{"--artifact-bucket", info.ArtifactBucket},
	} {
		if f.value == "" {
			missing = append(missing, f.flag)
		}
	}
	if len(missing) > 0 {
		return CreateDeploymentRequest{}, fmt.Errorf("missing flags: %s", strings.Join(missing, ", "))
	}
	return CreateDeploymentRequest{Info: &info}, nil
}
