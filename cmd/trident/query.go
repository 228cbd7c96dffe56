package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/trident/internal/perm"
)

func newQueryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <s> <p> <o>",
		Short: "Print the triples matching a pattern",
		Long: `Print the triples matching a pattern as "s p o" lines. Unbound positions
are written as "?". Without --perm the permutation whose leading columns
are the bound positions is used.`,
		Args: cobra.ExactArgs(3),
		RunE: a.runQuery,
	}
	cmd.Flags().String("perm", "", "permutation to scan (spo, ops, pos, sop, osp, pso)")
	cmd.Flags().Int("limit", 0, "maximum number of triples to print (0 for all)")
	return cmd
}

func (a *app) runQuery(cmd *cobra.Command, args []string) error {
	s, p, o, err := parsePattern(args)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	kb, err := a.open(true)
	if err != nil {
		return err
	}
	defer kb.Close()
	q, err := kb.NewQuerier()
	if err != nil {
		return err
	}

	idx := q.Index(s, p, o)
	if name, _ := cmd.Flags().GetString("perm"); name != "" {
		if idx, err = perm.Parse(name); err != nil {
			return err
		}
	}
	it, err := q.Iterator(idx, s, p, o)
	if err != nil {
		return err
	}
	defer q.Release(it)

	first, _, _ := perm.Permute(idx, s, p, o)
	out := cmd.OutOrStdout()
	n := 0
	for it.HasNext() && (limit <= 0 || n < limit) {
		it.Next()
		key := first
		if key < 0 {
			key = it.Key()
		}
		ts, tp, to := perm.Unpermute(idx, key, it.Value1(), it.Value2())
		_, _ = fmt.Fprintf(out, "%d %d %d\n", ts, tp, to)
		n++
	}
	return it.Err()
}

func newExistsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <s> <p> <o>",
		Short: "Report whether any triple matches a pattern",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, p, o, err := parsePattern(args)
			if err != nil {
				return err
			}
			kb, err := a.open(true)
			if err != nil {
				return err
			}
			defer kb.Close()
			q, err := kb.NewQuerier()
			if err != nil {
				return err
			}
			ok, err := q.Exists(s, p, o)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), ok)
			return nil
		},
	}
}

func newCardCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card <s> <p> <o>",
		Short: "Print the number of triples matching a pattern",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, p, o, err := parsePattern(args)
			if err != nil {
				return err
			}
			estimate, _ := cmd.Flags().GetBool("estimate")

			kb, err := a.open(true)
			if err != nil {
				return err
			}
			defer kb.Close()
			q, err := kb.NewQuerier()
			if err != nil {
				return err
			}
			var n int64
			if estimate {
				n, err = q.EstCard(s, p, o)
			} else {
				n, err = q.Card(s, p, o)
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	cmd.Flags().Bool("estimate", false, "return an upper bound without scanning tables")
	return cmd
}
