package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/emr/console/internal/api"
	"github.com/emr/console/internal/config"
	"github.com/emr/console/internal/platform/identity"
	"github.com/emr/console/internal/platform/session"
	"github.com/emr/console/internal/platform/tokenstore"
	"github.com/emr/console/internal/view"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "emr-console",
		Short:        "Staff console for the EMR records API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(patientsCmd())
	rootCmd.AddCommand(facilitiesCmd())
	rootCmd.AddCommand(servicesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app wires the console together: config, logger, token store, identity
// provider, session, and API client. One app lives for one command run.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    tokenstore.Store
	provider *identity.Keycloak
	session  *session.Session
	api      *api.Client
	toast    *view.Toast
}

func newApp(ctx context.Context) (*app, error) {
	// Logger
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel)
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := tokenstore.NewFileStore(cfg.TokenFile)
	toast := view.NewToast(os.Stderr)

	provider := identity.NewKeycloak(identity.KeycloakConfig{
		BaseURL:     cfg.KeycloakURL,
		Realm:       cfg.KeycloakRealm,
		ClientID:    cfg.KeycloakClientID,
		RedirectURI: cfg.RedirectURI(),
		Store:       store,
		Logger:      logger,
	})

	sess := session.New(provider, store, toast, logger, &session.Options{
		RefreshInterval:    cfg.RefreshInterval(),
		RefreshMinValidity: cfg.RefreshMinValidity(),
	})
	if err := sess.Start(ctx); err != nil {
		return nil, err
	}

	client := api.New(api.Config{
		BaseURL:   cfg.APIBaseURL,
		Tokens:    provider,
		Store:     store,
		Refresher: sess,
		OnReauthenticate: func() {
			toast.Error("Session expired. Run 'emr-console login' to sign in again.")
		},
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout()},
		Logger:     logger,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		provider: provider,
		session:  sess,
		api:      client,
		toast:    toast,
	}, nil
}

func (a *app) close() {
	a.session.Close()
}

// requireUser gates commands that need an authenticated session.
func (a *app) requireUser() (*session.User, error) {
	user := a.session.User()
	if user == nil && !a.session.IsLoading() {
		fmt.Fprint(os.Stderr, view.LoginPrompt())
		return nil, errors.New("not logged in")
	}
	if user == nil {
		return nil, errors.New("session still initializing")
	}
	return user, nil
}

// run builds the app, runs fn, and tears the session down.
func run(fn func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(ctx, a, cmd, args)
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// ---------------------------------------------------------------------------
// Session commands
// ---------------------------------------------------------------------------

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in through the hosted login page",
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if user := a.session.User(); user != nil {
				fmt.Printf("Already logged in as %s.\n", user.Username)
				return nil
			}
			if err := a.session.Login(ctx); err != nil {
				return err
			}
			user := a.session.User()
			fmt.Printf("Logged in as %s.\n", user.Username)
			return nil
		}),
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored token",
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			return a.session.Logout(ctx)
		}),
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			user, err := a.requireUser()
			if err != nil {
				return err
			}
			fmt.Print(view.Whoami(user))
			return nil
		}),
	}
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show record counts",
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			user, err := a.requireUser()
			if err != nil {
				return err
			}

			patients, err := a.api.ListPatients(ctx, 0)
			if err != nil {
				return err
			}
			facilities, err := a.api.ListFacilities(ctx)
			if err != nil {
				return err
			}
			services, err := a.api.ListServices(ctx)
			if err != nil {
				return err
			}

			fmt.Print(view.Dashboard(user, view.DashboardStats{
				Patients:   len(patients),
				Facilities: len(facilities),
				Services:   len(services),
			}))
			return nil
		}),
	}
}

// ---------------------------------------------------------------------------
// Patient commands
// ---------------------------------------------------------------------------

func patientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patients",
		Short: "Manage patients",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List patients",
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if _, err := a.requireUser(); err != nil {
				return err
			}
			facilityID, _ := cmd.Flags().GetInt64("facility")
			patients, err := a.api.ListPatients(ctx, facilityID)
			if err != nil {
				return err
			}
			fmt.Print(view.Patients(patients))
			return nil
		}),
	}
	listCmd.Flags().Int64("facility", 0, "Only list patients of this facility")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show one patient",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if _, err := a.requireUser(); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			patient, err := a.api.GetPatient(ctx, id)
			if err != nil {
				return err
			}
			fmt.Print(view.PatientDetail(patient))
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "search <query>",
		Short: "Search patients by name or MRN",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if _, err := a.requireUser(); err != nil {
				return err
			}
			patients, err := a.api.SearchPatients(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Print(view.Patients(patients))
			return nil
		}),
	})

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a patient",
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if _, err := a.requireUser(); err != nil {
				return err
			}
			form, err := patientFormFromFlags(cmd)
			if err != nil {
				return err
			}
			if err := form.Validate(); err != nil {
				a.toast.Error(err.Error())
				return err
			}
			created, err := a.api.CreatePatient(ctx, form.Patient())
			if err != nil {
				a.toast.Error(err.Error())
				return err
			}
			a.toast.Success(fmt.Sprintf("Patient %s created (id %d)", created.MRN, created.ID))
			return nil
		}),
	}
	addPatientFlags(createCmd)
	cmd.AddCommand(createCmd)

	updateCmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a patient",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if _, err := a.requireUser(); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			form, err := patientFormFromFlags(cmd)
			if err != nil {
				return err
			}
			if err := form.Validate(); err != nil {
				a.toast.Error(err.Error())
				return err
			}
			updated, err := a.api.UpdatePatient(ctx, id, form.Patient())
			if err != nil {
				a.toast.Error(err.Error())
				return err
			}
			a.toast.Success(fmt.Sprintf("Patient %s updated", updated.MRN))
			return nil
		}),
	}
	addPatientFlags(updateCmd)
	cmd.AddCommand(updateCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a patient",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if _, err := a.requireUser(); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.api.DeletePatient(ctx, id); err != nil {
				a.toast.Error(err.Error())
				return err
			}
			a.toast.Success("Patient deleted")
			return nil
		}),
	})

	return cmd
}

func addPatientFlags(cmd *cobra.Command) {
	cmd.Flags().String("mrn", "", "Medical record number")
	cmd.Flags().String("first-name", "", "First name")
	cmd.Flags().String("last-name", "", "Last name")
	cmd.Flags().String("gender", "", "Gender (MALE, FEMALE, OTHER)")
	cmd.Flags().String("dob", "", "Date of birth (YYYY-MM-DD)")
	cmd.Flags().String("phone", "", "Phone number")
	cmd.Flags().String("email", "", "Email address")
	cmd.Flags().String("address", "", "Street address")
	cmd.Flags().String("insurance-provider", "", "Insurance provider")
	cmd.Flags().String("insurance-policy", "", "Insurance policy number")
	cmd.Flags().Int64("facility", 0, "Facility id")
	cmd.Flags().StringSlice("service", nil, "Service name (repeatable)")
}

func patientFormFromFlags(cmd *cobra.Command) (*view.PatientForm, error) {
	flags := cmd.Flags()
	mrn, _ := flags.GetString("mrn")
	firstName, _ := flags.GetString("first-name")
	lastName, _ := flags.GetString("last-name")
	gender, _ := flags.GetString("gender")
	dob, _ := flags.GetString("dob")
	phone, _ := flags.GetString("phone")
	email, _ := flags.GetString("email")
	address, _ := flags.GetString("address")
	insuranceProvider, _ := flags.GetString("insurance-provider")
	insurancePolicy, _ := flags.GetString("insurance-policy")
	facilityID, _ := flags.GetInt64("facility")
	services, _ := flags.GetStringSlice("service")

	return &view.PatientForm{
		MRN:                   mrn,
		FirstName:             firstName,
		LastName:              lastName,
		Gender:                gender,
		DateOfBirth:           dob,
		PhoneNumber:           phone,
		Email:                 email,
		Address:               address,
		InsuranceProvider:     insuranceProvider,
		InsurancePolicyNumber: insurancePolicy,
		FacilityID:            facilityID,
		Services:              services,
	}, nil
}

// ---------------------------------------------------------------------------
// Facility commands
// ---------------------------------------------------------------------------

func facilitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facilities",
		Short: "Manage facilities",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List facilities",
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if _, err := a.requireUser(); err != nil {
				return err
			}
			facilities, err := a.api.ListFacilities(ctx)
			if err != nil {
				return err
			}
			fmt.Print(view.Facilities(facilities))
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show one facility",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if _, err := a.requireUser(); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			facility, err := a.api.GetFacility(ctx, id)
			if err != nil {
				return err
			}
			fmt.Print(view.Facilities([]api.Facility{*facility}))
			return nil
		}),
	})

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a facility",
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if _, err := a.requireUser(); err != nil {
				return err
			}
			form := facilityFormFromFlags(cmd)
			if err := form.Validate(); err != nil {
				a.toast.Error(err.Error())
				return err
			}
			created, err := a.api.CreateFacility(ctx, form.Facility())
			if err != nil {
				a.toast.Error(err.Error())
				return err
			}
			a.toast.Success(fmt.Sprintf("Facility %s created (id %d)", created.Name, created.ID))
			return nil
		}),
	}
	addFacilityFlags(createCmd)
	cmd.AddCommand(createCmd)

	updateCmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a facility",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if _, err := a.requireUser(); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			form := facilityFormFromFlags(cmd)
			if err := form.Validate(); err != nil {
				a.toast.Error(err.Error())
				return err
			}
			updated, err := a.api.UpdateFacility(ctx, id, form.Facility())
			if err != nil {
				a.toast.Error(err.Error())
				return err
			}
			a.toast.Success(fmt.Sprintf("Facility %s updated", updated.Name))
			return nil
		}),
	}
	addFacilityFlags(updateCmd)
	cmd.AddCommand(updateCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a facility",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if _, err := a.requireUser(); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.api.DeleteFacility(ctx, id); err != nil {
				a.toast.Error(err.Error())
				return err
			}
			a.toast.Success("Facility deleted")
			return nil
		}),
	})

	return cmd
}

func addFacilityFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "Facility name")
	cmd.Flags().String("address", "", "Street address")
	cmd.Flags().String("phone", "", "Phone number")
	cmd.Flags().String("email", "", "Contact email")
	cmd.Flags().String("type", "", "Facility type (e.g. HOSPITAL, CLINIC)")
}

func facilityFormFromFlags(cmd *cobra.Command) *view.FacilityForm {
	flags := cmd.Flags()
	name, _ := flags.GetString("name")
	address, _ := flags.GetString("address")
	phone, _ := flags.GetString("phone")
	email, _ := flags.GetString("email")
	facilityType, _ := flags.GetString("type")

	return &view.FacilityForm{
		Name:        name,
		Address:     address,
		PhoneNumber: phone,
		Email:       email,
		Type:        facilityType,
	}
}

// ---------------------------------------------------------------------------
// Service commands
// ---------------------------------------------------------------------------

func servicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "services",
		Short: "Browse the service catalog",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List services",
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if _, err := a.requireUser(); err != nil {
				return err
			}
			serviceType, _ := cmd.Flags().GetString("type")

			var services []api.Service
			var err error
			if serviceType != "" {
				services, err = a.api.ListServicesByType(ctx, serviceType)
			} else {
				services, err = a.api.ListServices(ctx)
			}
			if err != nil {
				return err
			}
			fmt.Print(view.Services(services))
			return nil
		}),
	}
	listCmd.Flags().String("type", "", "Only list services of this type (LAB, RADIOLOGY, CONSULTATION)")
	cmd.AddCommand(listCmd)

	return cmd
}
