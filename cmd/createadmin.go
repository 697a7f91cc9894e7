/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/eventdesk/apiserver/internal/db"
	"github.com/eventdesk/apiserver/internal/services"
	"github.com/eventdesk/apiserver/internal/storage"
	"github.com/eventdesk/apiserver/internal/store"
	"github.com/eventdesk/apiserver/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var adminInput services.SignupInput

// createAdminCmd provisions an active Admin account. The password is read
// from EVENTDESK_ADMIN_PASSWORD.
var createAdminCmd = &cobra.Command{
	Use:   "createadmin",
	Short: "Create an active Admin account",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer logger.Sync()

		password := os.Getenv("EVENTDESK_ADMIN_PASSWORD")
		if password == "" {
			return errors.New("EVENTDESK_ADMIN_PASSWORD is required")
		}
		in := adminInput
		in.Password1, in.Password2 = password, password

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		users := services.NewUserService(
			store.NewUserRepository(conn),
			services.NewActivationTokens(cfg.Auth.ActivationKey(), cfg.Auth.ActivationTTL),
			nil,
			storage.NewStorage(nil),
			services.UserServiceConfig{BaseURL: cfg.BaseURL, BcryptCost: cfg.Auth.BcryptCost, Logger: logger},
		)
		admin, err := users.CreateUser(cmd.Context(), in, types.RoleAdmin)
		if err != nil {
			var verr *services.ValidationError
			if errors.As(err, &verr) {
				for field, msg := range verr.Fields {
					fmt.Fprintf(os.Stderr, "%s: %s\n", field, msg)
				}
			}
			return err
		}

		logger.Info("admin created", zap.Int("user_id", admin.ID), zap.String("username", admin.Username))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createAdminCmd)
	createAdminCmd.Flags().StringVar(&adminInput.Username, "username", "admin", "login name")
	createAdminCmd.Flags().StringVar(&adminInput.Email, "email", "", "email address")
	createAdminCmd.Flags().StringVar(&adminInput.FirstName, "first-name", "Site", "first name")
	createAdminCmd.Flags().StringVar(&adminInput.LastName, "last-name", "Admin", "last name")
	_ = createAdminCmd.MarkFlagRequired("email")
}
