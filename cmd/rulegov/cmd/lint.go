package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/finsentry/rulegov/internal/condition"
)

var lintCmd = &cobra.Command{
	Use:   "lint <tree.json>",
	Short: "Validate a condition tree against the field catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runLint,
}

func init() {
	rootCmd.AddCommand(lintCmd)
}

func runLint(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	tree, err := condition.Decode(data)
	if err != nil {
		return fmt.Errorf("failed to parse condition tree: %w", err)
	}

	result := condition.Validate(tree, registry, condition.Options{MaxDepth: cfg.MaxTreeDepth})
	if result.Valid() {
		fmt.Println("ok")
		return nil
	}
	for _, p := range result.Problems {
		fmt.Printf("%s: %s: %s\n", p.Path, p.Kind, p.Message)
	}
	return fmt.Errorf("%d problem(s) found", len(result.Problems))
}
