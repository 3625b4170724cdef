package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pavitra93/care-intake-portal/shared/models"
	"github.com/pavitra93/care-intake-portal/shared/onboarding"
	"github.com/pavitra93/care-intake-portal/shared/remote"
	"github.com/pavitra93/care-intake-portal/shared/tenantdata"
	"github.com/pavitra93/care-intake-portal/shared/tenantstore"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

// openRemote is replaced in tests
var openRemote = func() (remote.Remote, error) {
	return remote.Open(cfg.Remote, utils.NewCircuitBreaker(5, 30*time.Second))
}

// loadStore connects and loads the tenant list. The service key, when set,
// is the bearer for reads and writes so row-level policies do not hide tenants.
func loadStore(ctx context.Context) (context.Context, *tenantstore.Store, error) {
	r, err := openRemote()
	if err != nil {
		return ctx, nil, fmt.Errorf("failed to connect to remote: %w", err)
	}
	if cfg.Remote.ServiceKey != "" {
		ctx = remote.WithAccessToken(ctx, cfg.Remote.ServiceKey)
	}
	store := tenantstore.New(tenantdata.NewService(r), tenantstore.WithServiceToken(cfg.Remote.ServiceKey))
	store.Load(ctx)
	return ctx, store, nil
}

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "Tenant management",
}

var tenantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenants",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := loadStore(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tFEATURES")
		for _, t := range store.Snapshot().Tenants {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Status, strings.Join(t.Features.Enabled(), ","))
		}
		return w.Flush()
	},
}

// SeedFile is the YAML layout read by `tenants seed`
type SeedFile struct {
	Tenants []SeedTenant `yaml:"tenants"`
}

// SeedTenant is one tenant in a seed file. Features lists the toggles to turn
// on; when omitted the defaults apply.
type SeedTenant struct {
	Name           string   `yaml:"name"`
	Status         string   `yaml:"status"`
	Features       []string `yaml:"features"`
	PrimaryColor   string   `yaml:"primary_color"`
	SecondaryColor string   `yaml:"secondary_color"`
	ABN            string   `yaml:"abn"`
	LegalName      string   `yaml:"legal_name"`
	InvoicePrefix  string   `yaml:"invoice_prefix"`
}

func (s SeedTenant) newTenant() (models.NewTenant, error) {
	in := models.NewTenant{
		Name:   strings.TrimSpace(s.Name),
		Status: models.TenantStatus(s.Status),
	}
	if in.Name == "" {
		return in, errors.New("name is required")
	}

	if s.Features != nil {
		features := models.Features{}
		for _, key := range s.Features {
			if err := features.Set(key, true); err != nil {
				return in, fmt.Errorf("%w: %s", err, key)
			}
		}
		in.Features = &features
	}

	branding := models.DefaultBranding()
	if s.PrimaryColor != "" {
		branding.PrimaryColor = s.PrimaryColor
	}
	if s.SecondaryColor != "" {
		branding.SecondaryColor = s.SecondaryColor
	}
	if !onboarding.ValidColour(branding.PrimaryColor) || !onboarding.ValidColour(branding.SecondaryColor) {
		return in, errors.New("colours must be #RRGGBB")
	}
	in.Branding = &branding

	docs := models.DefaultDocumentSettings()
	docs.ABN = onboarding.NormalizeABN(s.ABN)
	docs.LegalName = s.LegalName
	if s.InvoicePrefix != "" {
		docs.InvoicePrefix = strings.ToUpper(s.InvoicePrefix)
	}
	if docs.ABN != "" && !onboarding.ValidABN(docs.ABN) {
		return in, fmt.Errorf("%q is not a valid ABN", s.ABN)
	}
	in.Documents = &docs
	return in, nil
}

var tenantsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create tenants from a YAML file; names that already exist are skipped",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read seed file: %w", err)
		}
		var seed SeedFile
		if err := yaml.Unmarshal(raw, &seed); err != nil {
			return fmt.Errorf("failed to parse seed file: %w", err)
		}

		// validate everything before writing anything
		inputs := make([]models.NewTenant, 0, len(seed.Tenants))
		for i, st := range seed.Tenants {
			in, err := st.newTenant()
			if err != nil {
				return fmt.Errorf("tenant %d (%s): %w", i+1, st.Name, err)
			}
			inputs = append(inputs, in)
		}

		ctx, store, err := loadStore(cmd.Context())
		if err != nil {
			return err
		}
		existing := make(map[string]bool)
		for _, t := range store.Snapshot().Tenants {
			existing[strings.ToLower(t.Name)] = true
		}

		out := cmd.OutOrStdout()
		created := 0
		for _, in := range inputs {
			if existing[strings.ToLower(in.Name)] {
				fmt.Fprintf(out, "skip    %s (exists)\n", in.Name)
				continue
			}
			t, err := store.Create(ctx, in)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", in.Name, err)
			}
			existing[strings.ToLower(in.Name)] = true
			created++
			fmt.Fprintf(out, "created %s %s\n", t.ID, t.Name)
		}

		logrus.WithFields(logrus.Fields{
			"file":    path,
			"created": created,
		}).Debug("Seed finished")
		return nil
	},
}

var tenantsFeaturesCmd = &cobra.Command{
	Use:   "features <tenant-id>",
	Short: "Enable or disable feature toggles of a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enable, _ := cmd.Flags().GetStringSlice("enable")
		disable, _ := cmd.Flags().GetStringSlice("disable")

		ctx, store, err := loadStore(cmd.Context())
		if err != nil {
			return err
		}
		t, err := store.Tenant(args[0])
		if err != nil {
			return err
		}

		features := t.Features
		for _, key := range enable {
			if err := features.Set(key, true); err != nil {
				return fmt.Errorf("%w: %s (known: %s)", err, key, strings.Join(models.FeatureKeys, ", "))
			}
		}
		for _, key := range disable {
			if err := features.Set(key, false); err != nil {
				return fmt.Errorf("%w: %s (known: %s)", err, key, strings.Join(models.FeatureKeys, ", "))
			}
		}

		if len(enable)+len(disable) > 0 {
			if t, err = store.UpdateFeatures(ctx, t.ID, features); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", t.Name, strings.Join(t.Features.Enabled(), ","))
		return nil
	},
}

func init() {
	tenantsSeedCmd.Flags().StringP("file", "f", "tenants.yaml", "seed file")
	tenantsFeaturesCmd.Flags().StringSlice("enable", nil, "features to turn on")
	tenantsFeaturesCmd.Flags().StringSlice("disable", nil, "features to turn off")
}
