package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"jnanayoni/internal/crypto"
	"jnanayoni/internal/models"
)

// Snapshot is the JSON document written by Export.
type Snapshot struct {
	Version       int                    `json:"version"`
	ExportedAt    time.Time              `json:"exported_at"`
	Libraries     []*models.Library      `json:"libraries"`
	Users         []backupUser           `json:"users"`
	Enrollments   []models.Enrollment    `json:"enrollments"`
	Books         []*models.Book         `json:"books"`
	Transactions  []models.Transaction   `json:"transactions"`
	Notifications []*models.Notification `json:"notifications"`
	Resources     []*models.Resource     `json:"resources"`
}

type backupUser struct {
	models.User
	PasswordHash string `json:"password_hash"`
}

const snapshotVersion = 1

// Export dumps every table into a Snapshot, read inside a single transaction.
func (repo *Repository) Export(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Version: snapshotVersion, ExportedAt: time.Now().UTC()}
	err := repo.WithTx(ctx, func(tx *Repository) error {
		var err error
		if snap.Libraries, err = tx.ListLibraries(ctx); err != nil {
			return err
		}
		users, err := tx.ListUsers(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			snap.Users = append(snap.Users, backupUser{User: *u, PasswordHash: u.PasswordHash})
		}
		if snap.Enrollments, err = tx.ListEnrollments(ctx); err != nil {
			return err
		}
		if snap.Books, err = tx.ListAllBooks(ctx); err != nil {
			return err
		}
		for _, l := range snap.Libraries {
			txs, err := tx.ListTransactions(ctx, l.ID)
			if err != nil {
				return err
			}
			snap.Transactions = append(snap.Transactions, txs...)

			res, err := tx.ListResources(ctx, l.ID)
			if err != nil {
				return err
			}
			snap.Resources = append(snap.Resources, res...)
		}
		for _, u := range users {
			notes, err := tx.ListNotifications(ctx, u.ID)
			if err != nil {
				return err
			}
			snap.Notifications = append(snap.Notifications, notes...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("exporting: %w", err)
	}
	return snap, nil
}

// EncryptBackup marshals snap and seals it with the backup sub-key.
func EncryptBackup(key []byte, snap *Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshalling snapshot: %w", err)
	}
	blob, err := crypto.EncryptAESGCM(key, data)
	if err != nil {
		return nil, fmt.Errorf("encrypting backup: %w", err)
	}
	return blob, nil
}

// DecryptBackup opens a blob written by EncryptBackup.
func DecryptBackup(key, blob []byte) (*Snapshot, error) {
	data, err := crypto.DecryptAESGCM(key, blob)
	if err != nil {
		return nil, fmt.Errorf("decrypting backup: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshalling snapshot: %w", err)
	}
	return &snap, nil
}
