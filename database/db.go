/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"database/sql"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/cardsettle/config"
	"github.com/jerry-enebeli/cardsettle/internal/cache"
)

var (
	instance *Datasource
	once     sync.Once
)

// cardTTL bounds how long a card may be served from cache after it changed at the issuer
// without a card webhook reaching us.
const cardTTL = 5 * time.Minute

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration, c cache.Cache) (IDataSource, error) {
	ds, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return &Datasource{Conn: ds.Conn, Cache: c}, nil
}

// GetDBConnection opens the process-wide connection pool on first use.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err = db.Ping(); err != nil {
		logrus.Errorf("database connection error ❌: %v", err)
		return nil, err
	}
	return db, nil
}
