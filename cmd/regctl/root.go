package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
)

const (
	defaultServer = "http://localhost:8000"
	tokenEnv      = "REGCTL_TOKEN"
	serverEnv     = "REGCTL_SERVER"
	passwordEnv   = "REGCTL_PASSWORD"
)

type globalFlags struct {
	server  string
	token   string
	timeout time.Duration
}

func (g *globalFlags) client() *client {
	return newClient(g.server, g.token, g.timeout)
}

func (g *globalFlags) requireToken() error {
	if g.token == "" {
		return errors.New("no session token: pass --token or set " + tokenEnv + " (see 'regctl login')")
	}
	return nil
}

func newRootCmd(out io.Writer) *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "regctl",
		Short:         "Client for the semantic service registry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	server := os.Getenv(serverEnv)
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVar(&g.server, "server", server, "Registry base URL (env "+serverEnv+")")
	root.PersistentFlags().StringVar(&g.token, "token", os.Getenv(tokenEnv), "Session token (env "+tokenEnv+")")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 30*time.Second, "Request timeout")

	root.AddCommand(
		newLoginCmd(g),
		newLogoutCmd(g),
		newRFPCmd(g),
		newRefreshCmd(g),
		newSearchCmd(g),
		newServiceRFPsCmd(g),
	)
	return root
}

func newLoginCmd(g *globalFlags) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Open a publication session and print its token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(passwordEnv)
			}
			if password == "" {
				return errors.New("password required: pass --password or set " + passwordEnv)
			}
			resp, err := g.client().login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (env "+passwordEnv+")")
	return cmd
}

func newLogoutCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the current session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.requireToken(); err != nil {
				return err
			}
			revoked, err := g.client().logout(cmd.Context())
			if err != nil {
				return err
			}
			if revoked {
				fmt.Fprintln(cmd.OutOrStdout(), "session revoked")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "session was not active")
			}
			return nil
		},
	}
}

func newRFPCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rfp",
		Short: "Manage Request Functional Profiles in the match index",
	}

	var req types.RFPRequest
	add := &cobra.Command{
		Use:   "add <rfp-uri>",
		Short: "Index an RFP and print the services it matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.requireToken(); err != nil {
				return err
			}
			req.URI = args[0]
			resp, err := g.client().addRFP(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printAffected(cmd.OutOrStdout(), resp)
		},
	}
	add.Flags().StringVar(&req.CategoryURI, "category", "", "Category URI")
	add.Flags().StringSliceVar(&req.RequiredInputURIs, "input", nil, "Required input URI (repeatable)")
	add.Flags().StringSliceVar(&req.RequiredOutputURIs, "output", nil, "Required output URI (repeatable)")
	_ = add.MarkFlagRequired("category")

	remove := &cobra.Command{
		Use:   "remove <rfp-uri>",
		Short: "Drop an RFP from the index and print the services it matched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.requireToken(); err != nil {
				return err
			}
			resp, err := g.client().removeRFP(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printAffected(cmd.OutOrStdout(), resp)
		},
	}

	var provider string
	query := &cobra.Command{
		Use:   "query <rfp-uri>",
		Short: "List the services matching an indexed RFP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := g.client().query(cmd.Context(), args[0], provider)
			if err != nil {
				return err
			}
			return printServices(cmd.OutOrStdout(), services)
		},
	}
	query.Flags().StringVar(&provider, "provider", "", "Only services of this provider")

	list := &cobra.Command{
		Use:   "list",
		Short: "List indexed RFPs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rfps, err := g.client().listRFPs(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RFP\tCATEGORY\tINPUTS\tOUTPUTS")
			for _, r := range rfps {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.URI, r.CategoryURI,
					strings.Join(r.RequiredInputURIs, ","), strings.Join(r.RequiredOutputURIs, ","))
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(add, remove, query, list)
	return cmd
}

func newRefreshCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-evaluate every indexed RFP against current service profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.requireToken(); err != nil {
				return err
			}
			resp, err := g.client().refresh(cmd.Context())
			if err != nil {
				return err
			}
			return printAffected(cmd.OutOrStdout(), resp)
		},
	}
}

func newSearchCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <keyword>...",
		Short: "Keyword search over service names and descriptions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			matches, err := g.client().search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCORE\tKEY\tPROVIDER\tNAME")
			for _, m := range matches {
				fmt.Fprintf(tw, "%.2f\t%s\t%s\t%s\n", m.Score, m.Service.Key, m.Service.ProviderKey, m.Service.Name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results")
	return cmd
}

func newServiceRFPsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rfps <service-key>",
		Short: "List the indexed RFPs a service satisfies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rfps, err := g.client().serviceRFPs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, uri := range rfps {
				fmt.Fprintln(cmd.OutOrStdout(), uri)
			}
			return nil
		},
	}
}

func printAffected(w io.Writer, resp types.AffectedResponse) error {
	fmt.Fprintf(w, "%d service(s) affected\n", resp.Count)
	for _, key := range resp.Affected {
		fmt.Fprintln(w, "  "+key)
	}
	return nil
}

func printServices(w io.Writer, services []types.BusinessService) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tPROVIDER\tNAME\tCATEGORY")
	for _, s := range services {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Key, s.ProviderKey, s.Name, s.CategoryURI)
	}
	return tw.Flush()
}
