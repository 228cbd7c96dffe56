package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/trident"
	"github.com/hupe1980/trident/internal/perm"
)

func newStatsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the size and layout of a knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kb, err := a.open(true)
			if err != nil {
				return err
			}
			defer kb.Close()
			st, err := kb.Stats()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			_, _ = fmt.Fprintf(out, "dir:          %s\n", kb.Dir())
			_, _ = fmt.Fprintf(out, "triples:      %d\n", st.NTriples)
			_, _ = fmt.Fprintf(out, "terms:        %d\n", st.NTerms)
			_, _ = fmt.Fprintf(out, "aggregated:   %t\n", st.Aggregated)
			_, _ = fmt.Fprintf(out, "diff layers:  %d (%+d triples)\n", st.DiffLayers, st.DiffTriples)
			_, _ = fmt.Fprintf(out, "tree size:    %d\n", st.Tree.Size)
			for p, ps := range st.Perms {
				state := "not materialized"
				if ps.Materialized {
					state = fmt.Sprintf("%d tables, %d first-level groups, %d files", ps.Tables, ps.NFirstTables, ps.Files)
				}
				_, _ = fmt.Fprintf(out, "  %s: %s\n", perm.Name(p), state)
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print the statistics as JSON")
	return cmd
}

// errStop ends a walk early without reporting an error.
var errStop = errors.New("stop")

func newTermsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "terms",
		Short: "List the terms of the term tree with their table sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			kb, err := a.open(true)
			if err != nil {
				return err
			}
			defer kb.Close()

			out := cmd.OutOrStdout()
			n := 0
			err = kb.WalkTerms(func(term int64, c trident.TermCoordinates) error {
				if limit > 0 && n >= limit {
					return errStop
				}
				n++
				_, _ = fmt.Fprintf(out, "%d", term)
				for p := 0; p < perm.Count; p++ {
					_, _ = fmt.Fprintf(out, " %s=%d", perm.Name(p), c.NElements(p))
				}
				_, _ = fmt.Fprintln(out)
				return nil
			})
			if errors.Is(err, errStop) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().Int("limit", 0, "maximum number of terms to print (0 for all)")
	return cmd
}
