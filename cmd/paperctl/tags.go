package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"paperpedia/api/internal/tagquery"
)

func newTagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Inspect tag expressions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "compile <json>",
		Short: "Parse a tag expression and print the SQL condition it compiles to",
		Long: `Parse a tag expression and print the SQL condition it compiles to.

Example:
  paperctl tags compile '{"AND":["go",{"NOT":"draft"}]}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := tagquery.Parse([]byte(args[0]))
			if err != nil {
				return err
			}
			filter, err := tagquery.Compile(node, 1)
			if err != nil {
				return err
			}
			params, err := json.Marshal(filter.Args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "expression: %s\n", node)
			fmt.Fprintf(out, "sql:        %s\n", filter.SQL)
			fmt.Fprintf(out, "params:     %s\n", params)
			return nil
		},
	})
	return cmd
}
