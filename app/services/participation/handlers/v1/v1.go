// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/civicledger/participation/app/services/participation/handlers/v1/budgetgrp"
	"github.com/civicledger/participation/app/services/participation/handlers/v1/eventgrp"
	"github.com/civicledger/participation/app/services/participation/handlers/v1/proposalgrp"
	"github.com/civicledger/participation/app/services/participation/handlers/v1/usergrp"
	"github.com/civicledger/participation/business/core/proposal"
	"github.com/civicledger/participation/business/core/user"
	"github.com/civicledger/participation/business/core/vote"
	"github.com/civicledger/participation/foundation/events"
	"github.com/civicledger/participation/foundation/ledger"
	"github.com/civicledger/participation/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log      *zap.SugaredLogger
	User     user.Core
	Proposal proposal.Core
	Vote     *vote.Core
	Ledger   *ledger.Ledger
	Evts     *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	ugh := usergrp.Handlers{
		Log:  cfg.Log,
		User: cfg.User,
	}

	app.Handle(http.MethodPost, version, "/users", ugh.Create)
	app.Handle(http.MethodGet, version, "/users/:id", ugh.QueryByID)

	bgh := budgetgrp.Handlers{
		Log: cfg.Log,
	}

	app.Handle(http.MethodGet, version, "/budget/categories", bgh.Categories)

	pgh := proposalgrp.Handlers{
		Log:      cfg.Log,
		Proposal: cfg.Proposal,
		Vote:     cfg.Vote,
		Ledger:   cfg.Ledger,
	}

	app.Handle(http.MethodPost, version, "/proposals", pgh.Create)
	app.Handle(http.MethodGet, version, "/proposals", pgh.Query)
	app.Handle(http.MethodGet, version, "/proposals/:id", pgh.QueryByID)
	app.Handle(http.MethodPost, version, "/proposals/:id/vote", pgh.Cast)
	app.Handle(http.MethodGet, version, "/proposals/:id/voted/:userid", pgh.HasUserVoted)
	app.Handle(http.MethodGet, version, "/proposals/:id/wallet/:address", pgh.WalletVoted)
	app.Handle(http.MethodGet, version, "/users/:id/proposals", pgh.QueryByUser)

	egh := eventgrp.Handlers{
		Log:  cfg.Log,
		Evts: cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", egh.Events)
}
