package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/replug/replug/pkg/catalog"
	"github.com/replug/replug/pkg/fix"
)

func newTitlesCommand() *cobra.Command {
	var checkTitle string

	cmd := &cobra.Command{
		Use:   "titles",
		Short: "List or check known problematic titles",
		Long: `List the titles known to conflict with the plugin runtime, or check
one title against the list.

Matching is a case-insensitive substring test, so a partial name is
enough to check.`,
		Example: `  # List all known problematic titles
  replug titles

  # Check one title
  replug titles --check "Adrenaline"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if checkTitle != "" {
				problematic := fix.IsTitleProblematic(checkTitle)
				if jsonOutput {
					return printJSON(map[string]interface{}{
						"title":       checkTitle,
						"problematic": problematic,
					})
				}
				if problematic {
					fmt.Printf("%q matches the problematic-title list; expect plugin conflicts.\n", checkTitle)
				} else {
					fmt.Printf("%q is not on the problematic-title list.\n", checkTitle)
				}
				return nil
			}

			titles := catalog.ProblematicTitles()
			if jsonOutput {
				return printJSON(map[string]interface{}{
					"titles": titles,
					"count":  len(titles),
				})
			}
			fmt.Printf("Known problematic titles (%d):\n", len(titles))
			for _, title := range titles {
				fmt.Printf("  %s\n", title)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&checkTitle, "check", "", "title to check against the list")

	return cmd
}
