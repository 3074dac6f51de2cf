package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fmpfmp/mediaforge/pkg/mediafile"
)

func newJoinCommand(tools *toolFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "join <output> <input>...",
		Short: "Concatenate media files in the given order",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, inputs := args[0], args[1:]

			first, err := openFile(cmd.Context(), tools, inputs[0], true)
			if err != nil {
				return err
			}
			defer first.Close()

			others := make([]*mediafile.File, 0, len(inputs)-1)
			for _, input := range inputs[1:] {
				f, err := openFile(cmd.Context(), tools, input, false)
				if err != nil {
					return err
				}
				others = append(others, f)
			}

			err = first.JoinWith(cmd.Context(), output, others...)
			finishProgress()
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s from %d inputs\n", output, len(inputs))
			return nil
		},
	}
}
