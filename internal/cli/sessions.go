package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions on the server",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			sessions, err := e.client().List(ctx)
			if err != nil {
				return err
			}
			store, err := e.store()
			if err != nil {
				return err
			}
			bindings, err := store.List()
			if err != nil {
				return err
			}
			slotOf := make(map[string]string, len(bindings))
			for _, b := range bindings {
				slotOf[b.SessionID] = b.Name
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tSLOT\tSTATE\tSIZE\tAGE\tSHELL\tCWD")
			for _, s := range sessions {
				state := "running"
				if !s.Active {
					state = "exited"
					if s.ExitCode != nil {
						state = fmt.Sprintf("exited(%d)", *s.ExitCode)
					}
				}
				slot := slotOf[s.ID]
				if slot == "" {
					slot = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%dx%d\t%s\t%s\t%s\n",
					s.ID, slot, state, s.Cols, s.Rows,
					time.Since(s.StartedAt).Truncate(time.Second), s.Shell, s.Cwd)
			}
			return w.Flush()
		},
	}
}

func newKillCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "kill <slot|session>",
		Short: "Terminate a session and release its slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := e.resolve(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			if err := e.client().CloseSession(ctx, id); err != nil {
				return err
			}
			store, err := e.store()
			if err != nil {
				return err
			}
			if err := store.DeleteSession(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "killed %s\n", id)
			return nil
		},
	}
}

func newScrollbackCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "scrollback <slot|session>",
		Short: "Print a session's recent output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := e.resolve(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			data, err := e.client().Scrollback(ctx, id)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newSlotsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show slot bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := e.store()
			if err != nil {
				return err
			}
			bindings, err := store.List()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SLOT\tSESSION\tUPDATED")
			for _, b := range bindings {
				fmt.Fprintf(w, "%s\t%s\t%s\n", b.Name, b.SessionID, b.UpdatedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "forget <slot>",
		Short: "Remove a slot binding without killing its session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := e.store()
			if err != nil {
				return err
			}
			return store.Delete(args[0])
		},
	})
	return cmd
}
