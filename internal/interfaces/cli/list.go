package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/moldesc/internal/domain/descriptor/catalog"
	"github.com/turtacn/moldesc/pkg/errors"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	var modules []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the descriptor catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			entries, err := catalog.Entries(modules...)
			if err != nil {
				return err
			}
			if cliCtx.OutputFormat == "json" {
				return printJSON(cmd, entries)
			}
			rows := make([][]string, len(entries))
			for i, e := range entries {
				rows[i] = []string{e.Name, e.Module, e.Class, e.Doc}
			}
			fmt.Fprint(cmd.OutOrStdout(), FormatTable([]string{"name", "module", "class", "description"}, rows))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&modules, "module", "m", nil, "only these catalog modules")
	return cmd
}

// NewDescribeCmd creates the describe command.
func NewDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe NAME",
		Short: "Show one descriptor and its JSON form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			e, ok := catalog.Describe(args[0])
			if !ok {
				return errors.New(errors.ErrCodeUnknownDescriptor, "unknown descriptor").WithDetail(args[0])
			}
			if cliCtx.OutputFormat == "json" {
				return printJSON(cmd, e)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:        %s\n", e.Name)
			fmt.Fprintf(out, "Module:      %s\n", e.Module)
			fmt.Fprintf(out, "Class:       %s\n", e.Class)
			if e.Doc != "" {
				fmt.Fprintf(out, "Description: %s\n", e.Doc)
			}
			fmt.Fprintln(out, "JSON:")
			return printJSON(cmd, e.JSON)
		},
	}
}
