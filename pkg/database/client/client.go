/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/relay/pkg/config"
	"github.com/AMD-AIG-AIMA/relay/pkg/database/utils"
	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
)

// Client manages both the sqlx and the gorm database connections. The
// domain tables go through sqlx; the workflow journal uses the gorm handle.
type Client struct {
	db              *sqlx.DB
	gorm            *gorm.DB
	*utils.DBConfig // Embedded database configuration
}

// NewClient constructs a database client from the process configuration.
// Callers own the lifecycle and must Close the client on teardown.
func NewClient() (*Client, error) {
	cfg := &utils.DBConfig{
		DBName:         config.GetDBName(),
		Username:       config.GetDBUser(),
		Password:       config.GetDBPassword(),
		Host:           config.GetDBHost(),
		Port:           config.GetDBPort(),
		SSLMode:        config.GetDBSslMode(),
		MaxOpenConns:   config.GetDBMaxOpenConns(),
		MaxIdleConns:   config.GetDBMaxIdleConns(),
		MaxLifetime:    time.Duration(config.GetDBMaxLifetimeSecond()) * time.Second,
		MaxIdleTime:    time.Duration(config.GetDBMaxIdleTimeSecond()) * time.Second,
		ConnectTimeout: config.GetDBConnectTimeoutSecond(),
		RequestTimeout: time.Duration(config.GetDBRequestTimeoutSecond()) * time.Second,
	}
	if err := checkParams(cfg); err != nil {
		return nil, err
	}
	db, err := utils.Connect(cfg, utils.PgDriver)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %v", err)
	}
	gormDb, err := utils.ConnectGorm(cfg)
	if err != nil {
		return nil, err
	}
	klog.Infof("init db-client successfully! conn-timeout: %d(s), request-timeout: %d(s)",
		cfg.ConnectTimeout, config.GetDBRequestTimeoutSecond())
	return &Client{db: db, DBConfig: cfg, gorm: gormDb}, nil
}

// Close performs the Close operation.
func (c *Client) Close() {
	if c.db == nil {
		return
	}
	err := c.db.Close()
	if err != nil {
		klog.ErrorS(err, "failed to close db connection")
	}
}

// Gorm exposes the gorm handle for the workflow journal.
func (c *Client) Gorm() *gorm.DB {
	return c.gorm
}

// getDB retrieves DB for internal use.
func (c *Client) getDB() (*sqlx.DB, error) {
	if c.db == nil {
		return nil, relayerrors.NewInternalError("The client of db has not been initialized")
	}
	return c.db.Unsafe(), nil
}

func (c *Client) requestTimeout() time.Duration {
	if c.DBConfig == nil || c.RequestTimeout <= 0 {
		return 20 * time.Second
	}
	return c.RequestTimeout
}

// checkParams checks Params and returns the result.
func checkParams(cfg *utils.DBConfig) error {
	var errs []error
	if cfg.DBName == "" {
		errs = append(errs, fmt.Errorf("dbname not found"))
	}
	if cfg.Username == "" {
		errs = append(errs, fmt.Errorf("username not found"))
	}
	if cfg.Password == "" {
		errs = append(errs, fmt.Errorf("password not found"))
	}
	if cfg.Host == "" {
		errs = append(errs, fmt.Errorf("host not found"))
	}
	if cfg.SSLMode == "" {
		errs = append(errs, fmt.Errorf("ssl_mode not found"))
	}
	if cfg.Port == 0 {
		errs = append(errs, fmt.Errorf("port not found"))
	}
	return errors.Join(errs...)
}
