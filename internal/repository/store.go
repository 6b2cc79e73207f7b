package repository

import "log/slog"

// Store bundles the repositories that share one DB.
type Store struct {
	DB            *DB
	Accounts      AccountRepository
	Users         UserRepository
	Entities      EntityRepository
	Documents     DocumentRepository
	Requirements  RequirementRepository
	Notifications NotificationRepository
	SyncLogs      SyncLogRepository
}

func NewStore(db *DB, logger *slog.Logger) *Store {
	return &Store{
		DB:            db,
		Accounts:      NewAccountRepository(db, logger),
		Users:         NewUserRepository(db, logger),
		Entities:      NewEntityRepository(db, logger),
		Documents:     NewDocumentRepository(db, logger),
		Requirements:  NewRequirementRepository(db, logger),
		Notifications: NewNotificationRepository(db, logger),
		SyncLogs:      NewSyncLogRepository(db, logger),
	}
}
