package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/afiqaffendi/rbs/internal/api"
	"github.com/afiqaffendi/rbs/internal/client"
	"github.com/afiqaffendi/rbs/internal/config"
	"github.com/afiqaffendi/rbs/internal/database"
	"github.com/afiqaffendi/rbs/internal/lifecycle"
	"github.com/afiqaffendi/rbs/internal/models"
	"github.com/afiqaffendi/rbs/internal/slots"
)

func newSlotsCmd() *cobra.Command {
	var step, window int
	cmd := &cobra.Command{
		Use:     "slots <operating hours>",
		Short:   "Print the bookable slots for an operating hours string",
		Example: `  rbsctl slots "10:00 AM - 10:00 PM" --window 90`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := slots.Generate(args[0], step, window)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			n := 0
			for label := range seq {
				span, err := slots.Window(label, window)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-9s %s\n", label, span)
				n++
			}
			if n == 0 {
				fmt.Fprintln(out, "no slots: the dining window does not fit the operating hours")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&step, "step", models.DefaultStepMinutes, "minutes between slot starts")
	cmd.Flags().IntVar(&window, "window", models.DefaultWindowMinutes, "dining window length in minutes")
	return cmd
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		userID int64
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			actor, err := lifecycle.ParseActor(role)
			if err != nil {
				return err
			}
			tok, err := api.IssueToken(cfg.API.Auth.JWTSecret, cfg.API.Auth.Issuer, userID, actor, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id (token subject)")
	cmd.Flags().StringVar(&role, "role", string(lifecycle.ActorCustomer), "customer or owner")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert restaurants and their table inventory from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, db, _, err := opts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if file == "" {
				file = cfg.RestaurantsFile
			}
			if file == "" {
				return fmt.Errorf("no restaurants file: pass --file or set restaurants_file")
			}
			restaurants, err := config.LoadRestaurants(file)
			if err != nil {
				return err
			}
			if err := db.SyncRestaurants(cmd.Context(), restaurants); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d restaurants\n", len(restaurants))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "restaurants YAML file (defaults to restaurants_file)")
	return cmd
}

func newBackupCmd(opts *rootOptions) *cobra.Command {
	var cleanup, list bool
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a consistent copy of the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, db, logger, err := opts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			svc := database.NewBackupService(db, cfg.Backup, logger)
			if list {
				files, err := svc.List()
				if err != nil {
					return err
				}
				for _, f := range files {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %8d  %s\n", f.ModTime.Format(time.RFC3339), f.Size, f.Path)
				}
				return nil
			}
			path, err := svc.PerformBackup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			if cleanup {
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d old backups\n", svc.CleanupOldBackups())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "also remove backups older than retention_days")
	cmd.Flags().BoolVar(&list, "list", false, "list existing backups instead of writing one")
	return cmd
}

func newOutboxCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect the event outbox",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count outbox rows per status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, _, err := opts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			counts, err := db.CountOutboxByStatus(cmd.Context())
			if err != nil {
				return err
			}
			statuses := make([]string, 0, len(counts))
			for s := range counts {
				statuses = append(statuses, s)
			}
			sort.Strings(statuses)
			for _, s := range statuses {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %d\n", s, counts[s])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "failed",
		Short: "Print dead-lettered outbox events as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, _, err := opts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			tasks, err := db.GetFailedOutboxTasks(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, t := range tasks {
				if err := enc.Encode(t); err != nil {
					return err
				}
			}
			return nil
		},
	})

	return cmd
}

func newAvailabilityCmd() *cobra.Command {
	var (
		baseURL      string
		restaurantID int64
		date         string
		pax          int
	)
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Show the slot availability of a restaurant from a running API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := client.New(baseURL)
			r, err := c.GetRestaurant(cmd.Context(), restaurantID)
			if err != nil {
				return err
			}
			list, err := c.SlotAvailability(cmd.Context(), restaurantID, date, pax)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s) on %s for %d\n", r.Name, r.OperatingHours, date, pax)
			for _, s := range list {
				state := "full"
				switch {
				case s.Available:
					state = fmt.Sprintf("%s, %d left", s.Class, s.Remaining)
				case s.Reason != "":
					state = s.Reason
				}
				fmt.Fprintf(out, "  %-9s %s\n", s.Slot, state)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "API base URL")
	cmd.Flags().Int64Var(&restaurantID, "restaurant", 0, "restaurant id")
	cmd.Flags().StringVar(&date, "date", time.Now().Format(models.DateLayout), "booking date YYYY-MM-DD")
	cmd.Flags().IntVar(&pax, "pax", 2, "party size")
	_ = cmd.MarkFlagRequired("restaurant")
	return cmd
}

// newPayCmd plays the payment gateway against a running API, for local testing.
func newPayCmd() *cobra.Command {
	var (
		baseURL   string
		apiKey    string
		bookingID int64
		status    string
		reference string
	)
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Send a payment gateway callback for a booking",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := client.New(baseURL).WithAPIKey(apiKey)
			b, err := c.SendPaymentEvent(cmd.Context(), lifecycle.PaymentEvent{
				BookingID: bookingID,
				Status:    status,
				Reference: reference,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "booking %d is %s\n", b.ID, b.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&apiKey, "key", os.Getenv("PAYMENT_GATEWAY_KEY"), "gateway API key")
	cmd.Flags().Int64Var(&bookingID, "booking", 0, "booking id")
	cmd.Flags().StringVar(&status, "status", "success", "success, pending or failed")
	cmd.Flags().StringVar(&reference, "reference", "", "gateway bill code")
	return cmd
}
