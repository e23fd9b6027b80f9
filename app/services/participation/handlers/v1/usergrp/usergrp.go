// Package usergrp maintains the group of handlers for user access.
package usergrp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/civicledger/participation/business/core/user"
	v1 "github.com/civicledger/participation/business/web/v1"
	"github.com/civicledger/participation/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of user endpoints.
type Handlers struct {
	Log  *zap.SugaredLogger
	User user.Core
}

// Create adds a new user to the system.
func (h Handlers) Create(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var nu newUser
	if err := web.Decode(r, &nu); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	usr, err := h.User.Create(ctx, user.NewUser{Username: nu.Username, Email: nu.Email}, v.Now)
	if err != nil {
		if errors.Is(err, user.ErrUniqueViolate) {
			return v1.NewRequestError(err, http.StatusConflict)
		}
		return fmt.Errorf("creating user: %w", err)
	}

	return web.Respond(ctx, w, usr, http.StatusCreated)
}

// QueryByID returns a user by its ID.
func (h Handlers) QueryByID(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	userID, err := strconv.ParseUint(web.Param(r, "id"), 10, 64)
	if err != nil {
		return v1.NewRequestError(fmt.Errorf("invalid user id"), http.StatusBadRequest)
	}

	usr, err := h.User.QueryByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return v1.NewRequestError(err, http.StatusNotFound)
		}
		return fmt.Errorf("querying user %d: %w", userID, err)
	}

	return web.Respond(ctx, w, usr, http.StatusOK)
}
