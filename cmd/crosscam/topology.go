package main

import (
	"strings"

	"github.com/spf13/cobra"

	app "github.com/okian/crosscam/internal/app"
	"github.com/okian/crosscam/internal/domain/model"
)

func newTopologyCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Manage camera adjacency edges",
	}
	cmd.AddCommand(newTopologySetCmd(c), newTopologyListCmd(c))
	return cmd
}

func newTopologySetCmd(c *cli) *cobra.Command {
	var edge model.CameraTopologyEdge
	var direction string
	cmd := &cobra.Command{
		Use:   "set CAMERA_A CAMERA_B",
		Short: "Create or replace the edge between two cameras",
		Long: `Store the expected transit time between two cameras. Continuations
between them are accepted up to transition time multiplied by the grace
factor. The pair is unordered: setting B A replaces A B.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			edge.CameraAID, edge.CameraBID = args[0], args[1]
			edge.Direction = model.Direction(strings.ToUpper(direction))
			var saved model.CameraTopologyEdge
			err := c.withService(cmd.Context(), func(svc *app.Service) error {
				var err error
				saved, err = svc.ConfigureTopology(cmd.Context(), edge)
				return err
			})
			if err != nil {
				return err
			}
			return c.print(cmd, saved)
		},
	}
	f := cmd.Flags()
	f.IntVar(&edge.TransitionTimeSeconds, "transition", model.DefaultTransitionSeconds, "expected transit time in seconds")
	f.StringVar(&direction, "direction", string(model.DirectionBidirectional), "A_TO_B, B_TO_A or BIDIRECTIONAL")
	f.StringVar(&edge.Scope, "scope", "", "topology scope (default: scope from configuration)")
	return cmd
}

func newTopologyListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the edges of the configured scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var edges []model.CameraTopologyEdge
			err := c.withService(cmd.Context(), func(svc *app.Service) error {
				edges = svc.Topology()
				return nil
			})
			if err != nil {
				return err
			}
			return c.print(cmd, edges)
		},
	}
}
