package registry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sidecarlabs/agora/pkg/models"
)

// seedService is the YAML shape of one seed entry. Prices are decimal
// strings ("0.03") so seed files stay human-editable.
type seedService struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Capabilities []string `yaml:"capabilities"`
	Price        string   `yaml:"price"`
	Currency     string   `yaml:"currency"`
	Endpoint     string   `yaml:"endpoint"`
}

type seedFile struct {
	Services []seedService `yaml:"services"`
}

// LoadSeed parses a YAML seed file into service descriptors.
func LoadSeed(path string) ([]*models.ServiceDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	descs := make([]*models.ServiceDescriptor, 0, len(sf.Services))
	for _, s := range sf.Services {
		currency := s.Currency
		if currency == "" {
			currency = "USDC"
		}
		price, err := models.ParseMoney(s.Price, currency)
		if err != nil {
			return nil, fmt.Errorf("seed service %s: %w", s.ID, err)
		}
		descs = append(descs, &models.ServiceDescriptor{
			ID:           s.ID,
			Name:         s.Name,
			Description:  s.Description,
			Capabilities: s.Capabilities,
			Price:        price,
			Endpoint:     s.Endpoint,
		})
	}
	return descs, nil
}

// ApplySeed registers every seed descriptor that is not already present.
// Existing ids are left untouched so accumulated reputation survives
// seed reloads.
func ApplySeed(ctx context.Context, store Store, descs []*models.ServiceDescriptor) (added int, err error) {
	for _, desc := range descs {
		regErr := store.Register(ctx, desc)
		switch {
		case regErr == nil:
			added++
		case errors.Is(regErr, ErrDuplicateID):
			// Already known; keep the stored descriptor and its ratings.
		default:
			return added, fmt.Errorf("register seed service %s: %w", desc.ID, regErr)
		}
	}
	return added, nil
}
