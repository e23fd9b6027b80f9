// Package budgetgrp maintains the group of handlers for budget category
// access.
package budgetgrp

import (
	"context"
	"net/http"

	"github.com/civicledger/participation/business/core/budget"
	"github.com/civicledger/participation/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of budget endpoints.
type Handlers struct {
	Log *zap.SugaredLogger
}

// Categories returns the fixed set of budget categories with descriptions.
func (h Handlers) Categories(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, budget.Items(), http.StatusOK)
}
