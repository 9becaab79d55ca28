package admin

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// CollectionCmd manages the configured vector collection.
func CollectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage the vector collection",
		Long:  "Create, inspect and drop the collection named by DOCQA_COLLECTION",
	}

	cmd.AddCommand(collectionEnsureCmd())
	cmd.AddCommand(collectionCountCmd())
	cmd.AddCommand(collectionDropCmd())

	return cmd
}

func collectionEnsureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Create the collection if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := loadApp(cmd, appOptions{migrate: true, ensureCollection: true})
			if err != nil {
				return err
			}
			defer done()

			fmt.Printf("Collection %s ready (dimension %d)\n", a.index.Collection(), a.cfg.EmbeddingDimensions)
			return nil
		},
	}
}

func collectionCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of indexed chunks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := loadApp(cmd, appOptions{migrate: true})
			if err != nil {
				return err
			}
			defer done()

			n, err := a.index.Count(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to count collection: %w", err)
			}
			fmt.Println(n)
			return nil
		},
	}
}

func collectionDropCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop the collection and every chunk in it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := loadApp(cmd, appOptions{migrate: true})
			if err != nil {
				return err
			}
			defer done()

			name := a.index.Collection()
			if !yes && !confirm(fmt.Sprintf("Drop collection %s?", name)) {
				fmt.Println("Aborted")
				return nil
			}

			if err := a.index.DropCollection(cmd.Context(), name); err != nil {
				return fmt.Errorf("failed to drop collection: %w", err)
			}
			fmt.Printf("Dropped collection %s\n", name)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
