package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/arq-village/internal/storage"
)

var archiveKind string

var archiveCmd = &cobra.Command{
	Use:   "archive <file.jsonl.zst>",
	Short: "Print an hourly activity archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchive,
}

func init() {
	archiveCmd.Flags().StringVarP(&archiveKind, "kind", "k", "", "Only show entries of this kind (move, thought, chat, work, inference, system)")
}

func runArchive(cmd *cobra.Command, args []string) error {
	entries, err := storage.ReadArchive(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	shown := 0
	for _, e := range entries {
		if archiveKind != "" && string(e.Kind) != archiveKind {
			continue
		}
		fmt.Fprintf(out, "%s %-9s %s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Kind, e.Text)
		shown++
	}
	fmt.Fprintf(out, "%d of %d entries\n", shown, len(entries))
	return nil
}
