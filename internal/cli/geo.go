package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/opencode-ai/e2ecore/internal/geo"
	"github.com/spf13/cobra"
)

var (
	geoCwd        string
	geoFirst      bool
	geoAdditional bool
	geoDefault    bool
	geoName       string
)

func init() {
	rootCmd.AddCommand(geoCmd)

	geoCmd.PersistentFlags().StringVar(&geoCwd, "cwd", "", "project directory the CLI runs in (default current directory)")
	geoCmd.PersistentFlags().BoolVar(&geoFirst, "first", false, "expect the pricing plan prompts shown for the first geo resource")
	geoCmd.PersistentFlags().BoolVar(&geoAdditional, "additional", false, "expect the set-as-default prompt shown for additional resources")
	geoCmd.PersistentFlags().BoolVar(&geoDefault, "default", true, "answer to the set-as-default prompt (with --additional)")
	geoCmd.PersistentFlags().StringVar(&geoName, "name", "", "resource name to type instead of the suggested one")

	for _, flow := range geo.Flows() {
		geoCmd.AddCommand(newGeoFlowCmd(flow))
	}
	geoCmd.AddCommand(geoListCmd)
}

var geoCmd = &cobra.Command{
	Use:   "geo",
	Short: "Run geo resource flows against the configured CLI",
	Long: `Run the scripted add, update and remove flows for geo maps and place
indexes. The CLI binary comes from --cli-path (default amplify).`,
}

var geoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List geo flows",
	RunE: func(cmd *cobra.Command, args []string) error {
		flows := geo.Flows()
		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			type flowInfo struct {
				Name         string `json:"name"`
				Description  string `json:"description"`
				Configurable bool   `json:"configurable"`
			}
			infos := make([]flowInfo, 0, len(flows))
			for _, flow := range flows {
				infos = append(infos, flowInfo{flow.Name, flow.Description, flow.Configurable})
			}
			return WriteOutput(out, infos)
		}

		rows := make([][]string, 0, len(flows))
		for _, flow := range flows {
			rows = append(rows, []string{flow.Name, formatYesNo(flow.Configurable), flow.Description})
		}
		return writeTable(out, []string{"FLOW", "OPTIONS", "DESCRIPTION"}, rows)
	},
}

func newGeoFlowCmd(flow geo.Flow) *cobra.Command {
	return &cobra.Command{
		Use:   flow.Name,
		Short: flow.Description,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := geoOptions(cmd, flow)
			if err != nil {
				return err
			}
			cwd, err := resolveProjectDir(geoCwd)
			if err != nil {
				return err
			}

			cfg := GetConfig()
			rt, err := newSessionRuntime(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := geo.NewClient(cfg.CLIPath, rt.options)
			progress := startProgress(cmd.ErrOrStderr(), fmt.Sprintf("geo %s", flow.Name))
			if err := flow.Run(client, ctx, cwd, opts...); err != nil {
				progress.Fail(err)
				return err
			}
			progress.Done()

			if IsJSONOutput() {
				return WriteOutput(cmd.OutOrStdout(), map[string]string{"flow": flow.Name, "outcome": "succeeded"})
			}
			return nil
		},
	}
}

// geoOptions turns the add flags into options, rejecting them for flows
// that take none.
func geoOptions(cmd *cobra.Command, flow geo.Flow) ([]geo.Option, error) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if !flow.Configurable {
		for _, name := range []string{"first", "additional", "default", "name"} {
			if changed(name) {
				return nil, fmt.Errorf("--%s is only supported by the add flows", name)
			}
		}
		return nil, nil
	}

	var opts []geo.Option
	if geoFirst {
		opts = append(opts, geo.WithFirstResource())
	}
	if geoAdditional {
		opts = append(opts, geo.WithAdditional(geoDefault))
	} else if changed("default") {
		return nil, fmt.Errorf("--default requires --additional")
	}
	if geoName != "" {
		opts = append(opts, geo.WithResourceName(geoName))
	}
	return opts, nil
}
