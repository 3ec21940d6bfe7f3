package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/yohanns/storefront/internal/catalog"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store"
)

// seedFile is the YAML fixture format.
type seedFile struct {
	Branches []seedBranch  `yaml:"branches"`
	Products []seedProduct `yaml:"products"`
	Artists  []seedArtist  `yaml:"artists"`
}

type seedBranch struct {
	Name                string `yaml:"name"`
	Address             string `yaml:"address"`
	City                string `yaml:"city"`
	Phone               string `yaml:"phone"`
	Email               string `yaml:"email"`
	IsMainManufacturing bool   `yaml:"is_main_manufacturing"`
}

type seedProduct struct {
	Name           string   `yaml:"name"`
	Category       string   `yaml:"category"`
	Description    string   `yaml:"description"`
	Price          float64  `yaml:"price"`
	MainImage      string   `yaml:"main_image"`
	AvailableSizes []string `yaml:"available_sizes"`
	StockQuantity  int      `yaml:"stock_quantity"`
	Branch         string   `yaml:"branch"` // branch name
}

type seedArtist struct {
	UserID         string   `yaml:"user_id"`
	ArtistName     string   `yaml:"artist_name"`
	Bio            string   `yaml:"bio"`
	Specialties    []string `yaml:"specialties"`
	CommissionRate float64  `yaml:"commission_rate"`
	Active         *bool    `yaml:"is_active"`
}

// seedResult counts what a seed run wrote.
type seedResult struct {
	Branches        int
	Products        int
	ProductsSkipped int
	Artists         int
}

func readSeed(r io.Reader) (*seedFile, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &f, nil
}

// applySeed writes f into st. Branches are matched by name and updated in
// place, products already present at the same branch are skipped, and
// artists are upserted by user id, so the run can be repeated.
func applySeed(ctx context.Context, st store.Store, f *seedFile, log *zap.Logger) (*seedResult, error) {
	res := &seedResult{}

	branches, err := st.ListBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	byName := make(map[string]int64, len(branches))
	for _, b := range branches {
		byName[b.NameKey()] = b.ID
	}
	for _, sb := range f.Branches {
		b := &domain.Branch{
			ID:                  byName[strings.ToLower(strings.TrimSpace(sb.Name))],
			Name:                strings.TrimSpace(sb.Name),
			Address:             sb.Address,
			City:                sb.City,
			Phone:               sb.Phone,
			Email:               sb.Email,
			IsMainManufacturing: sb.IsMainManufacturing,
		}
		if b.Name == "" {
			return nil, fmt.Errorf("branch name is required")
		}
		if err := st.UpsertBranch(ctx, b); err != nil {
			return nil, fmt.Errorf("branch %q: %w", b.Name, err)
		}
		byName[b.NameKey()] = b.ID
		res.Branches++
	}

	existing, err := st.ListProducts(ctx, store.ProductFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[productKey(p.Name, p.BranchID)] = true
	}
	products := catalog.NewService(st, log)
	for _, sp := range f.Products {
		p := &domain.Product{
			Name:           strings.TrimSpace(sp.Name),
			Category:       sp.Category,
			Description:    sp.Description,
			Price:          sp.Price,
			MainImage:      sp.MainImage,
			AvailableSizes: sp.AvailableSizes,
			StockQuantity:  sp.StockQuantity,
		}
		if sp.Branch != "" {
			id, ok := byName[strings.ToLower(strings.TrimSpace(sp.Branch))]
			if !ok {
				return nil, fmt.Errorf("product %q: unknown branch %q", sp.Name, sp.Branch)
			}
			p.BranchID = &id
		}
		key := productKey(p.Name, p.BranchID)
		if seen[key] {
			res.ProductsSkipped++
			continue
		}
		if _, err := products.CreateProduct(ctx, p); err != nil {
			return nil, fmt.Errorf("product %q: %w", sp.Name, err)
		}
		seen[key] = true
		res.Products++
	}

	for _, sa := range f.Artists {
		a := &domain.ArtistProfile{
			UserID:         sa.UserID,
			ArtistName:     sa.ArtistName,
			Bio:            sa.Bio,
			Specialties:    sa.Specialties,
			CommissionRate: sa.CommissionRate,
			IsActive:       sa.Active == nil || *sa.Active,
		}
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("artist %q: %w", sa.ArtistName, err)
		}
		if err := st.SaveArtistProfile(ctx, a); err != nil {
			return nil, fmt.Errorf("artist %q: %w", sa.ArtistName, err)
		}
		res.Artists++
	}
	return res, nil
}

func productKey(name string, branchID *int64) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if branchID != nil {
		key += fmt.Sprintf("@%d", *branchID)
	}
	return key
}

var seedCmd = &cobra.Command{
	Use:     "seed",
	GroupID: "data",
	Short:   "Load branches, products and artists from a YAML file",
	Long: `Load fixture data into the configured store.

The file has three optional lists:

  branches:
    - name: Batangas City
      city: Batangas
      is_main_manufacturing: true
  products:
    - name: Team Jersey
      category: jerseys
      price: 550
      available_sizes: [S, M, L]
      branch: Batangas City
  artists:
    - user_id: 5f0c...
      artist_name: Amy
      specialties: [sublimation]

Seeding is repeatable: branches are updated by name, products that exist
at the same branch are skipped and artists are upserted by user id.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		fh, err := os.Open(path)
		if err != nil {
			return err
		}
		defer fh.Close()
		data, err := readSeed(fh)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		b, err := openBackend(ctx, cfg, logger.Named("store"))
		if err != nil {
			return err
		}
		defer b.Close()

		res, err := applySeed(ctx, b.store, data, logger.Named("seed"))
		if err != nil {
			return err
		}
		fmt.Printf("%s Seeded %d branch(es), %d product(s), %d artist(s)\n",
			accent("✓"), res.Branches, res.Products, res.Artists)
		if res.ProductsSkipped > 0 {
			fmt.Println(muted(fmt.Sprintf("  %d product(s) already present, skipped", res.ProductsSkipped)))
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().StringP("file", "f", "seed.yaml", "YAML fixture file")
	rootCmd.AddCommand(seedCmd)
}
