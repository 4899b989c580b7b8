package tests

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/coincart/settlement-engine/internal/platform/db"
	"github.com/coincart/settlement-engine/internal/platform/web"

	"github.com/google/uuid"
	"github.com/tokenized/config"
)

// Success and failure markers.
const (
	Success = "✓"
	Failed  = "✗"
)

// Test owns state for running/shutting down tests.
type Test struct {
	Log       *log.Logger
	MasterDB  *db.DB
	WebConfig *web.Config
}

// New is the entry point for tests that need a database.
func New() *Test {

	// =========================================================================
	// Logging

	log := log.New(os.Stdout, "TEST : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	// ============================================================
	// Configuration

	cfg := struct {
		Db struct {
			Driver string `default:"postgres" envconfig:"DB_DRIVER"`
			URL    string `default:"user=foo dbname=bar sslmode=disable" envconfig:"DB_URL"`
		}
		Web struct {
			RootURL          string `envconfig:"ROOT_URL"`
			MinConfirmations int    `default:"3" envconfig:"MIN_CONFIRMATIONS"`
		}
	}{}

	if err := config.LoadConfig(context.Background(), &cfg); err != nil {
		log.Fatalf("main : Parsing Config : %v", err)
	}

	// ============================================================
	// Start Database

	masterDB, err := db.New(&db.DBConfig{
		Driver: cfg.Db.Driver,
		URL:    cfg.Db.URL,
	}, nil)
	if err != nil {
		log.Fatalf("main : Register DB : %v", err)
	}

	masterDB.SetStorage(newMockStorage())

	// ============================================================
	// Web Config

	webConfig := &web.Config{
		RootURL:          cfg.Web.RootURL,
		IsTest:           true,
		MinConfirmations: cfg.Web.MinConfirmations,
	}

	return &Test{log, masterDB, webConfig}
}

// TearDown is used for shutting down tests. Calling this should be
// done in a defer immediately after calling New.
func (t *Test) TearDown() {
	t.MasterDB.Close()
}

// Context returns an app level context for testing.
func Context() context.Context {
	values := web.Values{
		TraceID: uuid.New().String(),
		Now:     time.Now(),
	}

	ctx := context.WithValue(context.Background(), web.KeyValues, &values)

	return web.ContextWithValues(ctx, true)
}
