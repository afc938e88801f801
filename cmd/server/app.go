package main

import (
	"fmt"

	"jnanayoni/internal/config"
	"jnanayoni/internal/crypto"
	"jnanayoni/internal/files"
	"jnanayoni/internal/library"
	"jnanayoni/internal/qr"
	"jnanayoni/internal/store"
	"jnanayoni/internal/utils"
)

// app is the wired service graph behind serve and the admin commands.
type app struct {
	repo *store.Repository
	svc  *library.Service
	keys crypto.Keys
}

func (c *cli) openRepo() (*store.Repository, error) {
	if err := utils.EnsureDir(c.cfg.DataDir); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	repo, err := store.Open(c.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// keys derives the server sub-keys from the configured master key.
func (c *cli) keys() (crypto.Keys, error) {
	master, err := config.ReadMasterKey(c.cfg.DataDir)
	if err != nil {
		return crypto.Keys{}, err
	}
	keys, err := crypto.DeriveKeys(master)
	if err != nil {
		return crypto.Keys{}, fmt.Errorf("derive keys: %w", err)
	}
	return keys, nil
}

func (c *cli) openApp() (*app, error) {
	keys, err := c.keys()
	if err != nil {
		return nil, err
	}
	repo, err := c.openRepo()
	if err != nil {
		return nil, err
	}
	uploads, err := files.NewStore(c.cfg.UploadsDir, c.cfg.Uploads.MaxBytes)
	if err != nil {
		repo.Close()
		return nil, err
	}
	svc := library.NewService(repo, uploads, qr.NewCodec(keys.QR), c.cfg.Loan, c.logger)
	return &app{repo: repo, svc: svc, keys: keys}, nil
}

func (a *app) Close() error { return a.repo.Close() }
