package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tendril/internal/program"
)

type programInfo struct {
	Name        string `json:"name"`
	Mode        string `json:"mode"`
	Samples     int    `json:"samples"`
	Description string `json:"description"`
}

func newProgramsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "programs",
		Short: "List built-in programs",
		Long: `List the built-in programs. Any command that takes a program also accepts
a path to a YAML program file (*.yaml or *.yml).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			var infos []programInfo
			for _, name := range program.Builtins() {
				p, err := program.Lookup(name)
				if err != nil {
					return err
				}
				infos = append(infos, programInfo{
					Name:        p.Name,
					Mode:        p.Config.Mode,
					Samples:     len(p.Data),
					Description: p.Description,
				})
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(infos)
			}
			for _, info := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-7s %s\n", info.Name, info.Mode, info.Description)
			}
			return nil
		},
	}
}
