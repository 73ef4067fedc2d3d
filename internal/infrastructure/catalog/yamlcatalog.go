// Package catalog loads the plan catalog from a YAML file.
package catalog

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/storesync/storesync/internal/domain/plan"
	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/shared/utils"
)

type catalogFile struct {
	Plans []plan.Entry `yaml:"plans" validate:"required,dive"`
}

// YAMLCatalog is an in-memory plan catalog indexed by store product id.
type YAMLCatalog struct {
	entries   []plan.Entry
	byProduct map[vo.DeviceType]map[string]*plan.Entry
}

func LoadYAMLCatalog(path string) (*YAMLCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}
	return ParseYAMLCatalog(data)
}

// ParseYAMLCatalog rejects catalogs that map one product id to two plans.
func ParseYAMLCatalog(data []byte) (*YAMLCatalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid plan catalog: %w", err)
	}

	byProduct := map[vo.DeviceType]map[string]*plan.Entry{
		vo.DeviceTypeAndroid: {},
		vo.DeviceTypeIOS:     {},
	}
	c := &YAMLCatalog{entries: f.Plans, byProduct: byProduct}
	for i := range c.entries {
		e := &c.entries[i]
		e.Currency = utils.NormalizeCurrency(e.Currency)
		for platform, index := range c.byProduct {
			id := e.ProductID(platform)
			if id == "" {
				continue
			}
			if prev, ok := index[id]; ok {
				return nil, fmt.Errorf("product %s on %s is mapped to both %s and %s", id, platform, prev.PlanID, e.PlanID)
			}
			index[id] = e
		}
	}
	return c, nil
}

func (c *YAMLCatalog) FindByProductID(_ context.Context, platform vo.DeviceType, productID string) (*plan.Entry, error) {
	index, ok := c.byProduct[platform]
	if !ok {
		return nil, fmt.Errorf("unsupported platform %q", platform)
	}
	e, ok := index[productID]
	if !ok {
		return nil, nil
	}
	found := *e
	return &found, nil
}

func (c *YAMLCatalog) FindByPlanID(_ context.Context, planID string) (*plan.Entry, error) {
	for _, e := range c.entries {
		if e.PlanID == planID {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (c *YAMLCatalog) Entries() []plan.Entry {
	out := make([]plan.Entry, len(c.entries))
	copy(out, c.entries)
	return out
}
