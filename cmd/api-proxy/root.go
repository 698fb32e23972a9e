package main

import (
	"github.com/Sternrassler/resilient-api-client/pkg/logging"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	v := newViper()

	root := &cobra.Command{
		Use:   "api-proxy",
		Short: "Resilient proxy in front of a paginated JSON API",
		Long: `api-proxy forwards reads to a remote JSON API through the resilient client:
retries with backoff, quota tracking from X-RateLimit headers, conditional
caching in Redis, and pagination.

Every flag can also be set through the environment, e.g. APIPROXY_BASE_URL.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logging.ParseLevel(v.GetString("log-level"))
			if err != nil {
				return err
			}
			logging.Setup(logging.Config{
				Level:  level,
				Pretty: v.GetBool("log-pretty"),
				Output: cmd.ErrOrStderr(),
			})
			return nil
		},
	}

	bindGlobalFlags(root, v)
	root.AddCommand(newServeCommand(v))
	return root
}

