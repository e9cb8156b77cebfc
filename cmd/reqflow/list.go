package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
	"github.com/unkn0wn-root/reqflow/internal/filesvc"
	"github.com/unkn0wn-root/reqflow/internal/restfile"
)

func newListCmd() *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "list [dir]",
		Short: "List collections and their saved requests",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			files, err := filesvc.ListCollectionFiles(root, recursive)
			if err != nil {
				return errdef.Wrap(errdef.CodeFilesystem, err, "list %s", root)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, file := range files {
				coll, err := restfile.LoadCollection(file.Path)
				if err != nil {
					slog.Debug("not a collection", "path", file.Path, "error", errdef.Message(err))
					continue
				}
				saved := coll.Selected(nil)
				_, _ = tw.Write([]byte(file.Name + "\t" + coll.Name + "\t" + plural(len(saved), "request") + "\n"))
				for _, req := range saved {
					_, _ = tw.Write([]byte("  " + req.ID + "\t" + req.Method + "\t" + req.Name + "\n"))
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories")
	return cmd
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
