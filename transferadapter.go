package main

import (
	"errors"
	"path/filepath"

	"github.com/nexus-im/server/internal/filearea"
	"github.com/nexus-im/server/internal/store"
	"github.com/nexus-im/server/internal/transfer"
)

// storeAuthenticator adapts *store.Store to transfer.Authenticator, mapping
// an account's stored permission strings onto the transfer engine's
// Identity shape.
type storeAuthenticator struct {
	store *store.Store
}

func (a storeAuthenticator) Authenticate(username, password string) (transfer.Identity, error) {
	account, err := a.store.GetByUsername(username)
	if err != nil {
		return transfer.Identity{}, errors.New("invalid credentials")
	}
	if !account.Enabled || !store.VerifyPassword(password, account.PasswordHash) {
		return transfer.Identity{}, errors.New("invalid credentials")
	}
	perms := make(map[string]struct{}, len(account.Permissions))
	for _, p := range account.Permissions {
		perms[p] = struct{}{}
	}
	return transfer.Identity{
		AccountID: account.ID, Username: account.Username, IsAdmin: account.IsAdmin, Permissions: perms,
	}, nil
}

// fileAreaResolver adapts the file-area root directory to transfer.AreaResolver.
type fileAreaResolver struct {
	root string
}

func (r fileAreaResolver) RootDir() string { return r.root }

func (r fileAreaResolver) UserAreaDir(id transfer.Identity) (string, error) {
	return filepath.Join(r.root, filearea.UserAreaPath(id.Username)), nil
}
