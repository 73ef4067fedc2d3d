// Package plan describes the read-only plan catalog that maps store product
// ids onto internal plans.
package plan

import (
	"context"

	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
)

// Entry is one sellable plan and the product id it has in each store.
type Entry struct {
	PlanID           string `yaml:"plan_id" validate:"required"`
	AndroidProductID string `yaml:"android_product_id"`
	IOSProductID     string `yaml:"ios_product_id"`
	DisplayPrice     int64  `yaml:"display_price"`
	Currency         string `yaml:"currency"`
}

// ProductID returns the product id of the plan in the given store.
func (e Entry) ProductID(platform vo.DeviceType) string {
	if platform == vo.DeviceTypeAndroid {
		return e.AndroidProductID
	}
	return e.IOSProductID
}

// Catalog resolves store product ids. Both lookups return nil, nil when no
// plan matches.
type Catalog interface {
	FindByProductID(ctx context.Context, platform vo.DeviceType, productID string) (*Entry, error)
	FindByPlanID(ctx context.Context, planID string) (*Entry, error)
}
