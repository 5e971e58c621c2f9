// Package app wires configuration into the collaborators shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"campusevents/internal/accounts"
	"campusevents/internal/auth"
	"campusevents/internal/cloudinary"
	"campusevents/internal/config"
	"campusevents/internal/credential"
	"campusevents/internal/queue"
	"campusevents/internal/store"
)

// Queue opens the notification queue selected by QUEUE_BACKEND.
// The returned close func releases the backend connection.
func Queue(cfg config.App) (queue.Queue, func() error, error) {
	switch cfg.QueueBackend {
	case "redis":
		r, err := store.NewRedis(cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return queue.NewRedisQueue(r.Client, cfg.QueueName), r.Close, nil
	case "rabbitmq":
		q, err := queue.NewRabbitQueue(cfg.RabbitURL, cfg.QueueName)
		if err != nil {
			return nil, nil, err
		}
		return q, q.Close, nil
	default:
		return queue.NewInMemory(256), func() error { return nil }, nil
	}
}

// Images returns the credential image store selected by CREDENTIAL_STORE.
func Images(cfg config.App) (credential.ImageStore, error) {
	switch cfg.CredentialStore {
	case "dir":
		return credential.NewDirStore(cfg.CredentialDir, "/static/qrcodes")
	case "cloudinary":
		if !cfg.CloudinaryConfigured() {
			return nil, errors.New("cloudinary credentials are not set")
		}
		c := cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		return credential.CloudinaryStore{Uploader: c}, nil
	default:
		return credential.InlineStore{}, nil
	}
}

// SeedAccounts creates the configured admin and staff accounts when their
// passwords are set. Existing accounts are left untouched.
func SeedAccounts(ctx context.Context, acc *accounts.Service, cfg config.App, log zerolog.Logger) error {
	seeds := []struct {
		role     auth.Role
		username string
		password string
		name     string
	}{
		{auth.RoleAdmin, cfg.SeedAdminUsername, cfg.SeedAdminPassword, "Administrator"},
		{auth.RoleStaff, cfg.SeedStaffUsername, cfg.SeedStaffPassword, "Staff"},
	}
	for _, s := range seeds {
		if s.username == "" || s.password == "" {
			continue
		}
		created, err := acc.EnsureAccount(ctx, s.role, s.username, s.password, s.name)
		if err != nil {
			return fmt.Errorf("seed %s account: %w", s.role, err)
		}
		if created {
			log.Info().Str("role", string(s.role)).Str("username", s.username).Msg("seeded account")
		}
	}
	return nil
}
