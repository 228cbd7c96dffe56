package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/trident"
	"github.com/hupe1980/trident/internal/perm"
)

func newBuildCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <triples-file>",
		Short: "Bulk-load a knowledge base",
		Long: `Bulk-load the triples of a file ("-" for stdin) into the knowledge base
directory, which must not already hold one. Each line holds the subject,
predicate and object term IDs separated by whitespace.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBuild(cmd, args[0])
		},
	}
	return cmd
}

func (a *app) runBuild(cmd *cobra.Command, path string) error {
	triples, err := loadTriples(path, cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	res, err := trident.Build(cmd.Context(), a.cfg.Dir, triples, a.options()...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "built %s: %d triples, %d terms in %s\n", a.cfg.Dir, res.NTriples, res.NTerms, res.Duration)
	for p, ps := range res.Perms {
		if !ps.Materialized {
			continue
		}
		_, _ = fmt.Fprintf(out, "  %s: %d tables, %d files\n", perm.Name(p), ps.Tables, ps.Files)
	}
	return nil
}

func newUpdateCmd(a *app, op string) *cobra.Command {
	short := "Add triples as an update layer"
	if op == "remove" {
		short = "Remove triples through an update layer"
	}
	return &cobra.Command{
		Use:   op + " <triples-file>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			triples, err := loadTriples(args[0], cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			kb, err := a.open(false)
			if err != nil {
				return err
			}
			defer kb.Close()

			var n int64
			if op == "remove" {
				n, err = kb.RemoveTriples(cmd.Context(), triples)
			} else {
				n, err = kb.AddTriples(cmd.Context(), triples)
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d triples\n", op, n)
			return nil
		},
	}
}
