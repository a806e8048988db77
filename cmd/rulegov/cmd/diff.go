package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/finsentry/rulegov/internal/condition"
)

var diffCmd = &cobra.Command{
	Use:   "diff <old.json> <new.json>",
	Short: "Show structural changes between two condition trees",
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	old, err := readTree(args[0])
	if err != nil {
		return err
	}
	updated, err := readTree(args[1])
	if err != nil {
		return err
	}

	changes := condition.Diff(old, updated)
	if len(changes) == 0 {
		fmt.Println("no changes")
		return nil
	}
	for _, c := range changes {
		fmt.Printf("%-10s %s\n", c.Kind, c.Path)
	}
	return nil
}

func readTree(path string) (*condition.Group, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	tree, err := condition.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return tree, nil
}
