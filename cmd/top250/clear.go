package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/top250-crawler/internal/movie"
)

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored movie after confirmation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer closeStore(store, e.logger)
			return clearStore(cmd.Context(), store, cmd.InOrStdin(), cmd.OutOrStdout(), e.logger)
		},
	}
}

func clearStore(ctx context.Context, store movie.Store, in io.Reader, out io.Writer, logger *zap.Logger) error {
	fmt.Fprintln(out, "This will delete ALL stored movies.")
	fmt.Fprint(out, "Are you sure you want to continue? (yes/no): ")

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		fmt.Fprintln(out, "\nAborted.")
		return nil
	}
	if strings.ToLower(strings.TrimSpace(answer)) != "yes" {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	n, err := store.DeleteAll(ctx)
	if err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	logger.Info("store cleared", zap.Int64("rows", n))
	fmt.Fprintf(out, "Deleted %d movies.\n", n)
	return nil
}
