package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
)

func newNicheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "niche",
		Short: "Inspect niche configuration files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Load and validate a niche file or directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := common.LoadConfig().Niche.ConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			regs, err := niche.LoadPath(path)
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(regs))
			for id := range regs {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			out := cmd.OutOrStdout()
			for _, id := range ids {
				r := regs[id]
				fmt.Fprintf(out, "%s: %d entity types, %d requirement types, %d document types, %d templates\n",
					id, len(r.EntityTypes()), len(r.RequirementTypes()), len(r.DocumentTypes()), len(r.Templates()))
				for _, w := range r.Warnings() {
					fmt.Fprintf(out, "  warning: %s\n", w)
				}
			}
			return nil
		},
	})
	return cmd
}
