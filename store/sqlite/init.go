////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Handles low level database control and interfaces.

package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gitlab.com/quietmesh/murmur/store"
)

const (
	// Can be provided to sqlite to create a temporary, in-memory DB.
	temporaryDbPath = "file:%s?mode=memory&cache=shared"

	// Determines maximum runtime of DB queries.
	dbTimeout = 3 * time.Second
)

// newContext builds a context for database operations.
func newContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), dbTimeout)
}

// impl implements the store.Store interface with an underlying sqlite DB.
// NOTE: This model is NOT thread safe - it is the responsibility of the
// caller to ensure that its methods are called sequentially.
type impl struct {
	db *gorm.DB
}

// NewStore initializes the store.Store interface on a sqlite file. An empty
// path uses a temporary in-memory database, which is what the tests do.
func NewStore(dbFilePath string) (store.Store, error) {
	useTemporary := len(dbFilePath) == 0
	if useTemporary {
		dbFilePath = fmt.Sprintf(temporaryDbPath, "murmur")
		jww.WARN.Printf("No database file path specified! " +
			"Using temporary in-memory database")
	}

	db, err := gorm.Open(sqlite.Open(dbFilePath), &gorm.Config{
		Logger: logger.New(jww.TRACE, logger.Config{LogLevel: logger.Info}),
	})
	if err != nil {
		return nil, errors.Errorf(
			"Unable to initialize database backend: %+v", err)
	}

	// Enable Write Ahead Logging to enable multiple DB connections.
	if err = db.Exec("PRAGMA journal_mode = WAL;", nil).Error; err != nil {
		return nil, err
	}

	sqlDb, err := db.DB()
	if err != nil {
		return nil, errors.Errorf(
			"Unable to configure database connection pool: %+v", err)
	}
	sqlDb.SetMaxIdleConns(5)
	sqlDb.SetMaxOpenConns(10)
	sqlDb.SetConnMaxIdleTime(5 * time.Minute)
	sqlDb.SetConnMaxLifetime(10 * time.Minute)

	// WARNING: Order is important. Do not change without database testing.
	err = db.AutoMigrate(&Session{}, &Member{}, &Message{}, &Reaction{})
	if err != nil {
		return nil, err
	}

	jww.INFO.Println("Database backend initialized successfully!")
	return &impl{db: db}, nil
}
