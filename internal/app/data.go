package app

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"vehiclereport/internal/domain"
	"vehiclereport/internal/stats"
)

const importBatchSize = 500

func newVehiclesCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vehicles",
		Short: "Manage vehicle documents",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Import vehicle documents from a JSON array or JSON lines file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			vehicles, err := readVehicles(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			rt, err := load()
			if err != nil {
				return err
			}
			defer rt.Close()

			imported := 0
			for start := 0; start < len(vehicles); start += importBatchSize {
				end := min(start+importBatchSize, len(vehicles))
				n, err := rt.store.UpsertVehicles(cmd.Context(), vehicles[start:end])
				imported += n
				if err != nil {
					return fmt.Errorf("imported %d of %d: %w", imported, len(vehicles), err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d vehicles\n", imported)
			return nil
		},
	})
	return cmd
}

// readVehicles decodes either a single JSON array of vehicle documents or a stream of
// documents, one per line.
func readVehicles(r io.Reader) ([]domain.Vehicle, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var vehicles []domain.Vehicle
		if err := dec.Decode(&vehicles); err != nil {
			return nil, err
		}
		return vehicles, nil
	}

	var vehicles []domain.Vehicle
	for {
		var v domain.Vehicle
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			return vehicles, nil
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", len(vehicles)+1, err)
		}
		vehicles = append(vehicles, v)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

func newStatsCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate fleet statistics used for scoring",
	}

	populate := &cobra.Command{
		Use:   "populate",
		Short: "Recompute statistics from every vehicle document",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load()
			if err != nil {
				return err
			}
			defer rt.Close()
			res, err := stats.NewGenerator(rt.store, rt.store, rt.metrics, rt.log).Populate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Summary())
			return nil
		},
	}

	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the statistics table to an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load()
			if err != nil {
				return err
			}
			defer rt.Close()
			all, err := rt.store.AllStats(cmd.Context())
			if err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := stats.Export(f, all); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d stats to %s\n", len(all), out)
			return nil
		},
	}
	export.Flags().StringVar(&out, "out", "stats.xlsx", "output workbook path")

	cmd.AddCommand(populate, export)
	return cmd
}
