package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/appointment-engine/internal/config"
	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository/postgres"
	"github.com/jwalitptl/appointment-engine/pkg/auth"
	"github.com/jwalitptl/appointment-engine/pkg/client"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "apptctl",
		Short:        "Operator tooling for the appointment engine",
		SilenceUsage: true,
	}
	root.AddCommand(migrateCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(slotsCmd())
	return root
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			db, err := postgres.NewDB(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			applied, err := postgres.Migrate(ctx, db)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
			}
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user and role",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetInt64("user")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			token, err := mintToken(cfg.JWT, model.Actor{UserID: user, Role: model.Role(role)}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64("user", 0, "User id carried by the token")
	cmd.Flags().String("role", "", "patient, doctor, scheduler or admin")
	cmd.Flags().Duration("ttl", 0, "Token lifetime (defaults to jwt.expiry_hours)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show a doctor's slot grid for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctor, _ := cmd.Flags().GetInt64("doctor")
			date, _ := cmd.Flags().GetString("date")
			apiURL, _ := cmd.Flags().GetString("api")
			token, _ := cmd.Flags().GetString("token")
			asJSON, _ := cmd.Flags().GetBool("json")

			if token == "" {
				token = os.Getenv("APPT_TOKEN")
			}
			if token == "" {
				return fmt.Errorf("a bearer token is required (--token or APPT_TOKEN)")
			}

			availability, err := client.New(apiURL, token).AvailableSlots(cmd.Context(), doctor, date)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(availability)
			}
			printSlots(cmd.OutOrStdout(), availability)
			return nil
		},
	}
	cmd.Flags().Int64("doctor", 0, "Doctor id")
	cmd.Flags().String("date", time.Now().Format(model.DateLayout), "Day as YYYY-MM-DD")
	cmd.Flags().String("api", "http://localhost:8080/api/v1", "API base URL")
	cmd.Flags().String("token", "", "Bearer token (see apptctl token)")
	cmd.Flags().Bool("json", false, "Print the raw availability")
	_ = cmd.MarkFlagRequired("doctor")
	return cmd
}

func mintToken(cfg config.JWTConfig, actor model.Actor, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Duration(cfg.ExpiryHours) * time.Hour
	}
	return auth.NewJWTService(cfg.Secret, cfg.Issuer, ttl).GenerateToken(actor)
}

func printSlots(w io.Writer, a *model.Availability) {
	fmt.Fprintf(w, "doctor %d on %s\n", a.DoctorID, a.Date)
	if a.Provisional {
		fmt.Fprintln(w, "existing bookings could not be read; every slot is shown as free")
	}
	for _, s := range a.Slots {
		state := "booked"
		if s.Available {
			state = "free"
		}
		fmt.Fprintf(w, "  %s  %s\n", s.Time, state)
	}
	fmt.Fprintln(w, strconv.Itoa(len(a.Available()))+" of "+strconv.Itoa(len(a.Slots))+" slots free")
}
