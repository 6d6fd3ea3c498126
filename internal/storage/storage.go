package storage

import (
	"database/sql"
	"errors"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// New creates a new Storage instance and initializes the database
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id TEXT PRIMARY KEY,
			group_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			dao_address TEXT NOT NULL,
			dao_name TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_group_id ON subscriptions(group_id)`,

		`CREATE TABLE IF NOT EXISTS seen_proposals (
			id TEXT PRIMARY KEY,
			group_id INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_seen_proposals_group_id ON seen_proposals(group_id)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// --- Subscriptions ---

// Insert creates a new subscription. Returns ErrAlreadyExists when the
// group is already subscribed to the DAO. The check-then-insert pair is
// not transactional; two racing inserts can both pass the check, in
// which case the primary key rejects the loser.
func (s *Storage) Insert(groupID, userID int64, daoAddress, daoName string) (*Subscription, error) {
	id := SubscriptionID(groupID, daoAddress)

	if _, err := s.Get(id); err == nil {
		return nil, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	_, err := s.db.Exec(
		`INSERT INTO subscriptions (id, group_id, user_id, dao_address, dao_name)
		 VALUES (?, ?, ?, ?, ?)`,
		id, groupID, userID, daoAddress, daoName,
	)
	if err != nil {
		return nil, err
	}

	return &Subscription{
		ID:         id,
		GroupID:    groupID,
		UserID:     userID,
		DaoAddress: daoAddress,
		DaoName:    daoName,
	}, nil
}

// Get returns a subscription by id
func (s *Storage) Get(id string) (*Subscription, error) {
	var sub Subscription
	err := s.db.QueryRow(
		`SELECT id, group_id, user_id, dao_address, dao_name
		 FROM subscriptions WHERE id = ?`,
		id,
	).Scan(&sub.ID, &sub.GroupID, &sub.UserID, &sub.DaoAddress, &sub.DaoName)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &sub, nil
}

// GetAll returns every subscription across all groups
func (s *Storage) GetAll() ([]Subscription, error) {
	return s.querySubscriptions(
		`SELECT id, group_id, user_id, dao_address, dao_name FROM subscriptions`,
	)
}

// GetAllByGroupID returns all subscriptions of one group
func (s *Storage) GetAllByGroupID(groupID int64) ([]Subscription, error) {
	return s.querySubscriptions(
		`SELECT id, group_id, user_id, dao_address, dao_name
		 FROM subscriptions WHERE group_id = ?`,
		groupID,
	)
}

func (s *Storage) querySubscriptions(query string, args ...any) ([]Subscription, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.GroupID, &sub.UserID, &sub.DaoAddress, &sub.DaoName); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

// Delete removes a subscription. Deleting an unknown id is not an error.
func (s *Storage) Delete(id string) error {
	_, err := s.db.Exec("DELETE FROM subscriptions WHERE id = ?", id)
	return err
}

// ClearSubscriptionsByGroupID removes all subscriptions of a group,
// used when the bot is kicked from it.
func (s *Storage) ClearSubscriptionsByGroupID(groupID int64) error {
	_, err := s.db.Exec("DELETE FROM subscriptions WHERE group_id = ?", groupID)
	return err
}

// ClearSubscriptions removes every subscription
func (s *Storage) ClearSubscriptions() error {
	_, err := s.db.Exec("DELETE FROM subscriptions")
	return err
}

// --- Seen proposals ---

// InsertSeenProposal marks a proposal as notified for a group. Marking
// an already-seen pair is a no-op.
func (s *Storage) InsertSeenProposal(proposalAddress string, groupID int64) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO seen_proposals (id, group_id) VALUES (?, ?)",
		SeenProposalID(proposalAddress, groupID), groupID,
	)
	return err
}

// ContainsSeenProposal reports whether a (proposal, group) pair was
// already notified.
func (s *Storage) ContainsSeenProposal(proposalAddress string, groupID int64) (bool, error) {
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM seen_proposals WHERE id = ?",
		SeenProposalID(proposalAddress, groupID),
	).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ClearSeenProposals removes every seen marker
func (s *Storage) ClearSeenProposals() error {
	_, err := s.db.Exec("DELETE FROM seen_proposals")
	return err
}

// ClearSeenProposalsByGroupID removes all seen markers of a group
func (s *Storage) ClearSeenProposalsByGroupID(groupID int64) error {
	_, err := s.db.Exec("DELETE FROM seen_proposals WHERE group_id = ?", groupID)
	return err
}
