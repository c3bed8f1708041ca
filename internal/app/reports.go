package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vehiclereport/internal/domain"
	"vehiclereport/internal/jobs"
)

type vehicleFlags struct {
	year        int
	vehicleMake string
	model       string
	mileage     int
}

func (f *vehicleFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.year, "year", 0, "model year")
	cmd.Flags().StringVar(&f.vehicleMake, "make", "", "vehicle make")
	cmd.Flags().StringVar(&f.model, "model", "", "vehicle model")
	cmd.Flags().IntVar(&f.mileage, "mileage", 0, "odometer reading in miles")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("make")
	_ = cmd.MarkFlagRequired("model")
}

type premiumFlags struct {
	zip         string
	information string
	listingFile string
}

func (f *premiumFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.zip, "zip", "", "buyer zip code (premium)")
	cmd.Flags().StringVar(&f.information, "info", "", "anything known about the vehicle (premium)")
	cmd.Flags().StringVar(&f.listingFile, "listing", "", "path to a saved listing page (premium)")
}

func (f *premiumFlags) params() (domain.ReportParams, error) {
	p := domain.ReportParams{ZipCode: f.zip, Information: f.information}
	if f.listingFile != "" {
		html, err := os.ReadFile(f.listingFile)
		if err != nil {
			return domain.ReportParams{}, fmt.Errorf("read listing: %w", err)
		}
		p.ListingHTML = string(html)
	}
	return p, nil
}

func newGenerateCmd(load loader) *cobra.Command {
	var (
		vf   vehicleFlags
		pf   premiumFlags
		tier string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a report immediately and print it as JSON",
		Long: `Generates a report in the foreground without queueing it. Premium previews call
the text generator but never touch a credit balance.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := domain.ParseTier(strings.ToLower(tier))
			if err != nil {
				return err
			}
			params, err := pf.params()
			if err != nil {
				return err
			}
			rt, err := load()
			if err != nil {
				return err
			}
			defer rt.Close()

			p, err := rt.provider()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			assembler := rt.assembler(p)

			if t == domain.TierFree {
				res, err := assembler.AssembleFree(ctx, vf.year, vf.vehicleMake, vf.model, vf.mileage)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			}

			r := domain.Report{Tier: t, Year: vf.year, Make: vf.vehicleMake, Model: vf.model, Mileage: vf.mileage, Params: params}
			analysis, usage, err := rt.analyzer(p).Analyze(ctx, r)
			if err != nil {
				return err
			}
			var vehicle *domain.Vehicle
			if v, err := rt.store.Vehicle(ctx, vf.year, vf.vehicleMake, vf.model); err == nil {
				vehicle = &v
			} else if !errors.Is(err, domain.ErrVehicleNotFound) {
				return err
			}
			res, err := assembler.AssemblePremium(ctx, vehicle, r, analysis)
			if err != nil {
				return err
			}
			rt.log.WithField("tokens", usage.TotalTokens()).Info("premium preview generated")
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	vf.register(cmd)
	pf.register(cmd)
	cmd.Flags().StringVar(&tier, "tier", "free", "free or premium")
	return cmd
}

func newSubmitCmd(load loader) *cobra.Command {
	var (
		vf    vehicleFlags
		pf    premiumFlags
		tier  string
		email string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a report for the worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := pf.params()
			if err != nil {
				return err
			}
			rt, err := load()
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx := cmd.Context()

			req := jobs.SubmitRequest{
				Tier:    tier,
				Year:    vf.year,
				Make:    vf.vehicleMake,
				Model:   vf.model,
				Mileage: vf.mileage,
				Params:  params,
			}
			if email != "" {
				u, err := rt.store.UserByEmail(ctx, email)
				if err != nil {
					return fmt.Errorf("%s: %w", email, err)
				}
				req.UserID = &u.ID
			}
			r, err := rt.service().Submit(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), r.UUID)
			return nil
		},
	}
	vf.register(cmd)
	pf.register(cmd)
	cmd.Flags().StringVar(&tier, "tier", "free", "free or premium")
	cmd.Flags().StringVar(&email, "user", "", "email of the user paying for a premium report")
	return cmd
}

func newReportsCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect queued and finished reports",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status <uuid>",
			Short: "Print the status of a report",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := load()
				if err != nil {
					return err
				}
				defer rt.Close()
				r, err := rt.service().Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeStatus(cmd.OutOrStdout(), r)
			},
		},
		&cobra.Command{
			Use:   "show <uuid>",
			Short: "Print the result of a completed report as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := load()
				if err != nil {
					return err
				}
				defer rt.Close()
				r, err := rt.service().Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if r.Status != domain.StatusCompleted {
					return fmt.Errorf("report %s is %s", r.UUID, r.Status)
				}
				return writeJSON(cmd.OutOrStdout(), r.Result.Payload())
			},
		},
	)
	return cmd
}

func writeStatus(w io.Writer, r domain.Report) error {
	_, err := fmt.Fprintf(w, "%s %s %s %d %s %s (mileage %d)\n",
		r.UUID, r.Status, r.Tier, r.Year, r.Make, r.Model, r.Mileage)
	if err != nil {
		return err
	}
	if r.Error != "" {
		_, err = fmt.Fprintf(w, "error: %s\n", r.Error)
	}
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
