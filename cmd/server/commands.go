package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jnanayoni/internal/auth"
	"jnanayoni/internal/crypto"
	"jnanayoni/internal/models"
	"jnanayoni/internal/qr"
	"jnanayoni/internal/store"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := c.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()
			v, err := repo.SchemaVersion()
			if err != nil {
				return err
			}
			c.logger.Info("database migrated", zap.String("path", c.cfg.DBPath), zap.Int64("version", v))
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
			return nil
		},
	}
}

func (c *cli) seedCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the demo libraries, accounts and books into an empty database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := c.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			created, err := repo.Seed(cmd.Context(), hash, time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !created {
				fmt.Fprintln(out, "database already has libraries; seed skipped")
				return nil
			}
			c.logger.Info("demo data seeded")
			fmt.Fprintf(out, "seeded demo data; accounts %s, %s and %s use password %q\n",
				store.SeedStudentEmail, store.SeedSaraswatiAdmin, store.SeedArchiveAdmin, password)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "password123", "password for every demo account")
	return cmd
}

func (c *cli) userCmd() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	var role, email, name, password, libraries string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a student or library admin account",
		Long: `Create an account. Admins need --library naming the library they manage.
For students --library is an optional comma-separated list of libraries to enroll in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, ok := models.ParseRole(role)
			if !ok || r == models.RoleGuest {
				return fmt.Errorf("unknown role %q (want student or library)", role)
			}
			repo, err := c.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()
			authn, err := auth.NewAuthenticator(repo)
			if err != nil {
				return err
			}

			reg := auth.Registration{Email: email, Name: name, Password: password, Role: r}
			var enroll []string
			if r == models.RoleLibraryAdmin {
				reg.LibraryID = strings.TrimSpace(libraries)
			} else if libraries != "" {
				for _, id := range strings.Split(libraries, ",") {
					if id = strings.TrimSpace(id); id != "" {
						enroll = append(enroll, id)
					}
				}
			}
			if reg.LibraryID != "" {
				if _, err := repo.GetLibrary(cmd.Context(), reg.LibraryID); err != nil {
					return fmt.Errorf("library %s: %w", reg.LibraryID, err)
				}
			}
			u, err := authn.Register(cmd.Context(), reg)
			if err != nil {
				return err
			}
			for _, id := range enroll {
				if err := repo.Enroll(cmd.Context(), u.ID, id, time.Now()); err != nil {
					return fmt.Errorf("enroll in %s: %w", id, err)
				}
			}
			c.logger.Info("user created", zap.String("user", u.ID), zap.String("role", string(u.Role)))
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", strings.ToLower(string(u.Role)), u.ID, u.Email)
			return nil
		},
	}
	add.Flags().StringVar(&role, "role", "student", "student or library")
	add.Flags().StringVar(&email, "email", "", "login email")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&password, "password", "", "login password (at least 8 characters)")
	add.Flags().StringVar(&libraries, "library", "", "managed library id for admins, libraries to enroll in for students")
	add.MarkFlagRequired("email")
	add.MarkFlagRequired("name")
	add.MarkFlagRequired("password")
	userCmd.AddCommand(add)
	return userCmd
}

func (c *cli) qrCmd() *cobra.Command {
	qrCmd := &cobra.Command{
		Use:   "qr",
		Short: "QR label tools",
	}
	var bookID, out string
	var size int
	label := &cobra.Command{
		Use:   "label",
		Short: "Write the signed QR label of a book as PNG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			book, err := a.repo.GetBook(cmd.Context(), bookID)
			if err != nil {
				return fmt.Errorf("book %s: %w", bookID, err)
			}
			png, err := a.svc.Codec().Label(book.ID, size)
			if err != nil {
				return err
			}
			if out == "" {
				out = book.ID + ".png"
			}
			if err := os.WriteFile(out, png, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %q -> %s\n", book.ID, book.Title, out)
			return nil
		},
	}
	label.Flags().StringVar(&bookID, "book", "", "book id")
	label.Flags().StringVar(&out, "out", "", "output file (default <book>.png)")
	label.Flags().IntVar(&size, "size", qr.DefaultLabelSize, "image size in pixels")
	label.MarkFlagRequired("book")
	qrCmd.AddCommand(label)
	return qrCmd
}

func (c *cli) gensecretCmd() *cobra.Command {
	var out string
	var force bool
	cmd := &cobra.Command{
		Use:   "gensecret",
		Short: "Generate the 32-byte master key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = filepath.Join(c.cfg.DataDir, "master.key")
			}
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s already exists. Refusing to overwrite", out)
			}
			key, err := crypto.RandomBytes(32)
			if err != nil {
				return fmt.Errorf("generating random key: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o700); err != nil {
				return err
			}
			if err := os.WriteFile(out, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Master key written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "key file (default <data_dir>/master.key)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key")
	return cmd
}

func (c *cli) backupCmd() *cobra.Command {
	var out string
	backup := &cobra.Command{
		Use:   "backup",
		Short: "Write an encrypted snapshot of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			snap, err := a.repo.Export(cmd.Context())
			if err != nil {
				return err
			}
			blob, err := store.EncryptBackup(a.keys.Backup, snap)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, blob, 0o600); err != nil {
				return err
			}
			c.logger.Info("backup written", zap.String("path", out), zap.Int("bytes", len(blob)))
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", out, humanize.Bytes(uint64(len(blob))))
			printSnapshot(cmd, snap)
			return nil
		},
	}
	backup.Flags().StringVar(&out, "out", "", "output file")

	var in string
	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Decrypt a backup and summarise its contents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := c.keys()
			if err != nil {
				return err
			}
			blob, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			snap, err := store.DecryptBackup(keys.Backup, blob)
			if err != nil {
				return err
			}
			printSnapshot(cmd, snap)
			return nil
		},
	}
	inspect.Flags().StringVar(&in, "in", "", "backup file")
	inspect.MarkFlagRequired("in")
	backup.AddCommand(inspect)
	return backup
}

func printSnapshot(cmd *cobra.Command, snap *store.Snapshot) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "version %d, exported %s\n", snap.Version, snap.ExportedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  libraries      %d\n", len(snap.Libraries))
	fmt.Fprintf(w, "  users          %d\n", len(snap.Users))
	fmt.Fprintf(w, "  enrollments    %d\n", len(snap.Enrollments))
	fmt.Fprintf(w, "  books          %d\n", len(snap.Books))
	fmt.Fprintf(w, "  transactions   %d\n", len(snap.Transactions))
	fmt.Fprintf(w, "  notifications  %d\n", len(snap.Notifications))
	fmt.Fprintf(w, "  resources      %d\n", len(snap.Resources))
}
