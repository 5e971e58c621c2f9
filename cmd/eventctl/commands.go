package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"campusevents/internal/attendance"
	"campusevents/internal/auth"
	"campusevents/internal/credential"
	"campusevents/internal/export"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, func(e *env) error {
				if err := e.db.Migrate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(e.out, "schema up to date (%s)\n", e.db.Dialect)
				return nil
			})
		},
	}
}

func accountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage staff and admin accounts",
	}
	var role, username, password, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a staff or admin account if the username is free",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := auth.Role(role)
			if r != auth.RoleStaff && r != auth.RoleAdmin {
				return fmt.Errorf("--role must be staff or admin, got %q", role)
			}
			if password == "" {
				password = os.Getenv("EVENTCTL_PASSWORD")
			}
			return withEnv(cmd, func(e *env) error {
				created, err := e.acc.EnsureAccount(cmd.Context(), r, username, password, name)
				if err != nil {
					return err
				}
				if !created {
					fmt.Fprintf(e.out, "%s account %q already exists\n", r, username)
					return nil
				}
				fmt.Fprintf(e.out, "created %s account %q\n", r, username)
				return nil
			})
		},
	}
	create.Flags().StringVar(&role, "role", string(auth.RoleStaff), "account role: staff or admin")
	create.Flags().StringVar(&username, "username", "", "login name")
	create.Flags().StringVar(&password, "password", "", "password (default $EVENTCTL_PASSWORD)")
	create.Flags().StringVar(&name, "name", "", "display name (default username)")
	_ = create.MarkFlagRequired("username")
	cmd.AddCommand(create)
	return cmd
}

func eventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List and create events",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List every event with its seat usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, func(e *env) error {
				events, err := e.att.AllEvents(cmd.Context(), operator)
				if err != nil {
					return err
				}
				printEvents(e.out, events)
				return nil
			})
		},
	}

	var in attendance.EventInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, func(e *env) error {
				ev, err := e.att.CreateEvent(cmd.Context(), operator, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(e.out, "created event %d %q\n", ev.ID, ev.Title)
				return nil
			})
		},
	}
	f := create.Flags()
	f.StringVar(&in.Title, "title", "", "event title")
	f.StringVar(&in.Description, "description", "", "event description")
	f.StringVar(&in.Date, "date", "", "event date, YYYY-MM-DD")
	f.StringVar(&in.Time, "time", "", "start time, HH:MM")
	f.StringVar(&in.Venue, "venue", "", "venue")
	f.StringVar(&in.Organizer, "organizer", "", "organizer")
	f.IntVar(&in.Capacity, "capacity", 0, "number of seats")
	_ = create.MarkFlagRequired("title")
	_ = create.MarkFlagRequired("date")

	cmd.AddCommand(list, create)
	return cmd
}

func printEvents(w io.Writer, events []attendance.Event) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTIME\tTITLE\tSEATS")
	for _, ev := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d/%d\n", ev.ID, ev.Date, ev.Time, ev.Title, ev.RegisteredCount, ev.Capacity)
	}
	_ = tw.Flush()
}

func exportCommand() *cobra.Command {
	var (
		format       string
		outDir       string
		attendedOnly bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write registration or attendance exports to disk",
	}
	cmd.PersistentFlags().StringVar(&format, "format", "csv", "csv, excel or pdf")
	cmd.PersistentFlags().StringVar(&outDir, "out", ".", "output directory")

	event := &cobra.Command{
		Use:   "event <event-id>",
		Short: "Export one event's registrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("event id %q: %w", args[0], err)
			}
			return withEnv(cmd, func(e *env) error {
				f, err := e.att.ExportEvent(cmd.Context(), operator, id, parseFormat(e, format), attendedOnly)
				if err != nil {
					return err
				}
				return writeExport(e, outDir, f)
			})
		},
	}
	event.Flags().BoolVar(&attendedOnly, "attendance-only", false, "only registrations that checked in")

	all := &cobra.Command{
		Use:   "attendance",
		Short: "Export every check-in across events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, func(e *env) error {
				f, err := e.att.ExportAttendance(cmd.Context(), operator, parseFormat(e, format))
				if err != nil {
					return err
				}
				return writeExport(e, outDir, f)
			})
		},
	}
	cmd.AddCommand(event, all)
	return cmd
}

func parseFormat(e *env, tag string) export.Format {
	f, err := export.ParseFormat(tag)
	if err != nil {
		e.log.Warn().Err(err).Msg("Falling back to CSV")
	}
	return f
}

func writeExport(e *env, dir string, f export.File) error {
	if f.Warning != "" {
		e.log.Warn().Str("file", f.Name).Msg(f.Warning)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, f.Name)
	if err := os.WriteFile(path, f.Body, 0o644); err != nil {
		return err
	}
	fmt.Fprintln(e.out, path)
	return nil
}

func credentialCommand() *cobra.Command {
	var (
		file   string
		secret string
	)
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Inspect credential text offline",
	}
	check := &cobra.Command{
		Use:   "check",
		Short: "Parse credential text and verify its signature",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				raw []byte
				err error
			)
			if file == "" || file == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(file)
			}
			if err != nil {
				return err
			}
			p, err := credential.Parse(string(raw))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "event:           %s\n", p.EventTitle)
			fmt.Fprintf(out, "student id:      %s\n", p.StudentID)
			fmt.Fprintf(out, "registration id: %s\n", p.RegistrationID)
			if secret == "" {
				secret = os.Getenv("CREDENTIAL_SECRET")
			}
			if secret == "" {
				fmt.Fprintln(out, "signature:       not checked (no secret)")
				return nil
			}
			signer, err := credential.NewSigner(secret)
			if err != nil {
				return err
			}
			switch err := signer.Verify(p); {
			case err == nil:
				fmt.Fprintln(out, "signature:       valid")
			case errors.Is(err, credential.ErrUnsigned):
				fmt.Fprintln(out, "signature:       missing")
			default:
				return err
			}
			return nil
		},
	}
	check.Flags().StringVarP(&file, "file", "f", "-", "file holding the credential text, - for stdin")
	check.Flags().StringVar(&secret, "secret", "", "signing secret (default $CREDENTIAL_SECRET)")
	cmd.AddCommand(check)
	return cmd
}
