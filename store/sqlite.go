// Copyright 2025-2026 The streambench Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/apex/log"
	"github.com/streambench/provider/common"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// metadataSchema competition metadata tables
const metadataSchema = `
CREATE TABLE IF NOT EXISTS users (
	user_id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS competitions (
	competition_id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	code TEXT NOT NULL UNIQUE,
	end_date INTEGER NOT NULL,
	predictions_time_interval INTEGER NOT NULL,
	initial_training_time INTEGER NOT NULL,
	config TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS subscriptions (
	competition_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	subscribed_at INTEGER NOT NULL,
	PRIMARY KEY (competition_id, user_id)
);
`

// sqliteMetadataStore implements MetadataStore against SQLite
type sqliteMetadataStore struct {
	common.Component
	pool *sqlitex.Pool
}

// SqliteStoreParams parameters for opening the SQLite metadata store
type SqliteStoreParams struct {
	// DBPath path to the database file, or ":memory:"
	DBPath string `validate:"required"`
	// PoolSize number of pooled connections
	PoolSize int `validate:"gte=1"`
}

// GetSqliteMetadataStore open the SQLite backed competition metadata store
func GetSqliteMetadataStore(params SqliteStoreParams) (MetadataStore, error) {
	logTags := log.Fields{
		"module":    "store",
		"component": "sqlite-metadata",
		"instance":  params.DBPath,
	}
	pool, err := sqlitex.NewPool(params.DBPath, sqlitex.PoolOptions{
		PoolSize: params.PoolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, metadataSchema, nil)
		},
	})
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf(
			"Unable to open metadata store %s", params.DBPath,
		)
		return nil, err
	}
	log.WithFields(logTags).Info("Opened metadata store")
	return &sqliteMetadataStore{
		Component: common.Component{LogTags: logTags}, pool: pool,
	}, nil
}

// Close release the store's connections
func (s *sqliteMetadataStore) Close() error {
	log.WithFields(s.LogTags).Info("Closing metadata store")
	return s.pool.Close()
}

// GetUserByEmail fetch a user by email identity. Absence is (nil, nil).
func (s *sqliteMetadataStore) GetUserByEmail(
	ctxt context.Context, email string,
) (*User, error) {
	conn, err := s.pool.Take(ctxt)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)
	var result *User
	err = sqlitex.Execute(
		conn, "SELECT user_id, email FROM users WHERE email = ?", &sqlitex.ExecOptions{
			Args: []interface{}{email},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				result = &User{ID: stmt.ColumnInt64(0), Email: stmt.ColumnText(1)}
				return nil
			},
		},
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("User lookup '%s' failed", email)
		return nil, err
	}
	return result, nil
}

// GetCompetitionByCode fetch a competition by join code. Absence is (nil, nil).
func (s *sqliteMetadataStore) GetCompetitionByCode(
	ctxt context.Context, code string,
) (*Competition, error) {
	conn, err := s.pool.Take(ctxt)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)
	var result *Competition
	var scanErr error
	err = sqlitex.Execute(
		conn,
		`SELECT competition_id, name, code, end_date, predictions_time_interval,
			initial_training_time, config FROM competitions WHERE code = ?`,
		&sqlitex.ExecOptions{
			Args: []interface{}{code},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entry, err := scanCompetition(stmt)
				if err != nil {
					scanErr = err
					return err
				}
				result = entry
				return nil
			},
		},
	)
	if err != nil {
		if scanErr != nil {
			err = scanErr
		}
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Competition lookup '%s' failed", code,
		)
		return nil, err
	}
	return result, nil
}

// GetSubscription fetch one user's enrollment with a competition.
// Absence is (nil, nil).
func (s *sqliteMetadataStore) GetSubscription(
	ctxt context.Context, competitionID, userID int64,
) (*Subscription, error) {
	conn, err := s.pool.Take(ctxt)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)
	var result *Subscription
	err = sqlitex.Execute(
		conn,
		`SELECT competition_id, user_id, subscribed_at FROM subscriptions
			WHERE competition_id = ? AND user_id = ?`,
		&sqlitex.ExecOptions{
			Args: []interface{}{competitionID, userID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				result = &Subscription{
					CompetitionID: stmt.ColumnInt64(0),
					UserID:        stmt.ColumnInt64(1),
					SubscribedAt:  time.Unix(stmt.ColumnInt64(2), 0),
				}
				return nil
			},
		},
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Subscription lookup %d/%d failed", competitionID, userID,
		)
		return nil, err
	}
	return result, nil
}

// ListCompetitions fetch all hosted competitions
func (s *sqliteMetadataStore) ListCompetitions(ctxt context.Context) ([]Competition, error) {
	conn, err := s.pool.Take(ctxt)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)
	result := []Competition{}
	err = sqlitex.Execute(
		conn,
		`SELECT competition_id, name, code, end_date, predictions_time_interval,
			initial_training_time, config FROM competitions ORDER BY competition_id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entry, err := scanCompetition(stmt)
				if err != nil {
					return err
				}
				result = append(result, *entry)
				return nil
			},
		},
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Competition listing failed")
		return nil, err
	}
	return result, nil
}

// RecordUser register a new user, returning its ID
func (s *sqliteMetadataStore) RecordUser(ctxt context.Context, email string) (int64, error) {
	conn, err := s.pool.Take(ctxt)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)
	err = sqlitex.Execute(
		conn, "INSERT INTO users (email) VALUES (?)", &sqlitex.ExecOptions{
			Args: []interface{}{email},
		},
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("User insert '%s' failed", email)
		return 0, err
	}
	return conn.LastInsertRowID(), nil
}

// RecordCompetition register a new competition, returning its ID
func (s *sqliteMetadataStore) RecordCompetition(
	ctxt context.Context, competition Competition,
) (int64, error) {
	conn, err := s.pool.Take(ctxt)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)
	configDoc, err := json.Marshal(competition.Config)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Config of competition '%s' not serializable", competition.Code,
		)
		return 0, err
	}
	err = sqlitex.Execute(
		conn,
		`INSERT INTO competitions
			(name, code, end_date, predictions_time_interval, initial_training_time, config)
			VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []interface{}{
				competition.Name,
				competition.Code,
				competition.EndDate.Unix(),
				competition.PredictionsTimeInterval,
				competition.InitialTrainingTime,
				string(configDoc),
			},
		},
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Competition insert '%s' failed", competition.Code,
		)
		return 0, err
	}
	return conn.LastInsertRowID(), nil
}

// RecordSubscription register a user's enrollment with a competition
func (s *sqliteMetadataStore) RecordSubscription(
	ctxt context.Context, competitionID, userID int64,
) error {
	conn, err := s.pool.Take(ctxt)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)
	err = sqlitex.Execute(
		conn,
		"INSERT INTO subscriptions (competition_id, user_id, subscribed_at) VALUES (?, ?, ?)",
		&sqlitex.ExecOptions{
			Args: []interface{}{competitionID, userID, time.Now().Unix()},
		},
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Subscription insert %d/%d failed", competitionID, userID,
		)
		return err
	}
	return nil
}

// scanCompetition build a Competition from a metadata row
func scanCompetition(stmt *sqlite.Stmt) (*Competition, error) {
	entry := Competition{
		ID:                      stmt.ColumnInt64(0),
		Name:                    stmt.ColumnText(1),
		Code:                    stmt.ColumnText(2),
		EndDate:                 time.Unix(stmt.ColumnInt64(3), 0),
		PredictionsTimeInterval: int(stmt.ColumnInt64(4)),
		InitialTrainingTime:     int(stmt.ColumnInt64(5)),
	}
	if err := json.Unmarshal([]byte(stmt.ColumnText(6)), &entry.Config); err != nil {
		return nil, err
	}
	return &entry, nil
}
