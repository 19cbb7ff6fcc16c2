package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	apiclient "github.com/gfgkiit/trapped/pkg/api/client"
	"github.com/gfgkiit/trapped/pkg/crypto"
)

func newLoginCommand() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate as the admin and store the token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(username) == "" {
				return errors.New("--username is required")
			}
			secret := password
			if secret == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Password: ")
				raw, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Fprintln(cmd.OutOrStdout())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				secret = string(raw)
			}
			cfg, client, err := session()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			resp, err := client.Login(ctx, username, secret)
			if err != nil {
				return err
			}
			cfg.AccessToken = resp.Token
			cfg.ExpiresAt = resp.ExpiresAt
			if err := saveConfig(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "login successful")
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "admin", "admin username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored admin token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.AccessToken = ""
			cfg.ExpiresAt = ""
			if err := saveConfig(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newRegistrationsCommand() *cobra.Command {
	var domainName, slot string
	list := &cobra.Command{
		Use:   "list",
		Short: "List applicant registrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, client, err := session()
			if err != nil {
				return err
			}
			token, err := requireToken(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			records, err := client.ListRegistrations(ctx, token, domainName, slot)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tYEAR\tDOMAIN 1\tDOMAIN 2\tCREATED")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Username, r.Email, r.Year, r.Domain1, r.Domain2, r.CreatedAt.Format("2006-01-02 15:04"))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d registration(s)\n", len(records))
			return nil
		},
	}
	list.Flags().StringVar(&domainName, "domain", "", "only registrations choosing this domain")
	list.Flags().StringVar(&slot, "slot", "", "preference slot to match: first, second or both")

	cmd := &cobra.Command{Use: "registrations", Short: "Inspect applicant registrations"}
	cmd.AddCommand(list)
	return cmd
}

func newTeamsCommand() *cobra.Command {
	list := &cobra.Command{
		Use:   "list",
		Short: "List team registrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, client, err := session()
			if err != nil {
				return err
			}
			token, err := requireToken(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			teams, err := client.ListTeams(ctx, token)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TEAM\tMEMBERS\tCREATED")
			for _, t := range teams {
				names := make([]string, 0, len(t.Members))
				for _, m := range t.Members {
					names = append(names, m.Name)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.TeamName, strings.Join(names, ", "), t.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd := &cobra.Command{Use: "teams", Short: "Inspect team registrations"}
	cmd.AddCommand(list)
	return cmd
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show admission counts per domain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, client, err := session()
			if err != nil {
				return err
			}
			token, err := requireToken(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			summary, err := client.Stats(ctx, token)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "registrations: %d\nteams: %d\n\n", summary.Registrations, summary.Teams)
			names := make([]string, 0, len(summary.ByDomain))
			for name := range summary.ByDomain {
				names = append(names, name)
			}
			sort.Strings(names)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DOMAIN\tFIRST CHOICE")
			for _, name := range names {
				fmt.Fprintf(tw, "%s\t%d\n", name, summary.ByDomain[name])
			}
			return tw.Flush()
		},
	}
}

func newExportCommand() *cobra.Command {
	var output, slot string
	cmd := &cobra.Command{
		Use:   "export registrations|teams|domain <name>",
		Short: "Download a spreadsheet export",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := apiclient.ExportTarget{Kind: args[0], Slot: slot}
			switch args[0] {
			case apiclient.ExportRegistrations, apiclient.ExportTeams:
				if len(args) != 1 {
					return fmt.Errorf("export %s takes no extra arguments", args[0])
				}
			case apiclient.ExportDomain:
				if len(args) != 2 {
					return errors.New("export domain requires a domain name")
				}
				target.Domain = args[1]
			default:
				return fmt.Errorf("unknown export %q", args[0])
			}
			cfg, client, err := session()
			if err != nil {
				return err
			}
			token, err := requireToken(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()

			tmp, err := os.CreateTemp(".", ".trapped-export-*")
			if err != nil {
				return err
			}
			defer os.Remove(tmp.Name())
			name, err := client.Export(ctx, token, target, tmp)
			if closeErr := tmp.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}
			if output == "" {
				output = name
			}
			if err := os.Rename(tmp.Name(), output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file (default: server supplied name)")
	cmd.Flags().StringVar(&slot, "slot", "", "domain export slot: first, second or both")
	return cmd
}

func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			if len(raw) == 0 {
				return errors.New("password must not be empty")
			}
			hash, err := crypto.HashPassword(string(raw), crypto.MinCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
}

func newCheckDeviceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check-device <device-id>",
		Short: "Report whether a device has already submitted the form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := session()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			registered, err := client.CheckDevice(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered: %t\n", registered)
			return nil
		},
	}
}
