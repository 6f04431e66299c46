package courier

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("courier: no store configured")
	ErrStoreClosed = errors.New("courier: store closed")

	// Not found errors.
	ErrJobNotFound      = errors.New("courier: job not found")
	ErrDLQNotFound      = errors.New("courier: dlq entry not found")
	ErrCronNotFound     = errors.New("courier: cron entry not found")
	ErrCampaignNotFound = errors.New("courier: campaign not found")
	ErrNoActiveSync     = errors.New("courier: no sync in progress")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("courier: job already exists")
	ErrCampaignExists   = errors.New("courier: campaign already exists")
	ErrDuplicateKey     = errors.New("courier: idempotency key already claimed")
	ErrDuplicateCron    = errors.New("courier: duplicate cron entry")
	ErrSyncInProgress   = errors.New("courier: a sync is already in progress")

	// State errors.
	ErrInvalidState = errors.New("courier: invalid state transition")
	ErrLockTimeout  = errors.New("courier: named lock not acquired within wait budget")
)
