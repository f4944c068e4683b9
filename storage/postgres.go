package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/numbleroot/handoff/crdt"
	"github.com/pkg/errors"

	// We need fitting PostgreSQL drivers for gorm.
	_ "github.com/jinzhu/gorm/dialects/postgres"
)

// Structs

// replicaState is one row of the replica_states table.
type replicaState struct {
	ID        string `gorm:"primary_key"`
	Tier      uint32
	State     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// PostgresStore keeps replica snapshots in a
// PostgreSQL table, one row per replica.
type PostgresStore struct {
	IP         string
	Port       string
	Database   string
	User       string
	Connection *gorm.DB
}

// Functions

// TableName places rows in table replica_states.
func (replicaState) TableName() string {
	return "replica_states"
}

// NewPostgresStore connects to the database, checks
// that it is reachable and creates the table if needed.
func NewPostgresStore(ip string, port string, db string, user string, pass string, sslmode string) (*PostgresStore, error) {

	var conn *gorm.DB
	var err error

	if sslmode == "" {
		sslmode = "disable"
	}

	// Either attempt login with or without password to database.
	if pass != "" {
		conn, err = gorm.Open("postgres", fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, ip, port, db, sslmode))
	} else {
		conn, err = gorm.Open("postgres", fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", user, ip, port, db, sslmode))
	}
	if err != nil {
		return nil, fmt.Errorf("[storage.NewPostgresStore] Could not connect to database: %v", err)
	}

	// Try to reach database.
	err = conn.DB().Ping()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("[storage.NewPostgresStore] Specified database not reachable after connection: %v", err)
	}

	err = conn.AutoMigrate(&replicaState{}).Error
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("[storage.NewPostgresStore] Creating table failed: %v", err)
	}

	return &PostgresStore{
		IP:         ip,
		Port:       port,
		Database:   db,
		User:       user,
		Connection: conn,
	}, nil
}

// Load selects the row of replica id.
func (s *PostgresStore) Load(id string) (*crdt.Snapshot[string], error) {

	row := new(replicaState)

	err := s.Connection.Where("id = ?", id).First(row).Error
	if err != nil {

		if gorm.IsRecordNotFoundError(err) {
			return nil, ErrNotFound
		}

		return nil, errors.Wrapf(err, "[storage.Load] selecting state of %s failed", id)
	}

	snap := new(crdt.Snapshot[string])

	err = json.Unmarshal([]byte(row.State), snap)
	if err != nil {
		return nil, errors.Wrapf(err, "[storage.Load] decoding state of %s failed", id)
	}

	return snap, nil
}

// Save inserts or updates the row of the replica
// snap belongs to.
func (s *PostgresStore) Save(snap *crdt.Snapshot[string]) error {

	raw, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrapf(err, "[storage.Save] encoding state of %s failed", snap.ID)
	}

	row := &replicaState{
		ID:    snap.ID,
		Tier:  snap.Tier,
		State: string(raw),
	}

	err = s.Connection.Save(row).Error
	if err != nil {
		return errors.Wrapf(err, "[storage.Save] storing state of %s failed", snap.ID)
	}

	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.Connection.Close()
}
