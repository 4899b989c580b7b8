package bootstrap

import "time"

// Config is used to hold all runtime configuration.
type Config struct {
	Web struct {
		RootURL         string        `envconfig:"ROOT_URL" json:"ROOT_URL"`
		APIHost         string        `default:"0.0.0.0:8080" envconfig:"API_HOST" json:"API_HOST"`
		ReadTimeout     time.Duration `default:"5s" envconfig:"READ_TIMEOUT" json:"READ_TIMEOUT"`
		WriteTimeout    time.Duration `default:"5s" envconfig:"WRITE_TIMEOUT" json:"WRITE_TIMEOUT"`
		ShutdownTimeout time.Duration `default:"5s" envconfig:"SHUTDOWN_TIMEOUT" json:"SHUTDOWN_TIMEOUT"`
	}
	Db struct {
		Driver string `default:"postgres" envconfig:"DB_DRIVER" json:"DB_DRIVER"`
		URL    string `default:"user=foo dbname=bar sslmode=disable" envconfig:"DB_URL" json:"DB_URL" masked:"true"`
	}
	Storage struct {
		Bucket string `default:"standalone" envconfig:"STORAGE_BUCKET" json:"STORAGE_BUCKET"`
		Root   string `default:"./tmp" envconfig:"STORAGE_ROOT" json:"STORAGE_ROOT"`
	}
	Settlement struct {
		IsTest bool `default:"true" envconfig:"IS_TEST" json:"IS_TEST"`

		// MinConfirmations gates on-chain settlement and escrow funding.
		MinConfirmations int `default:"3" envconfig:"MIN_CONFIRMATIONS" json:"MIN_CONFIRMATIONS"`

		InvoiceExpiry       time.Duration `default:"1h" envconfig:"INVOICE_EXPIRY" json:"INVOICE_EXPIRY"`
		ExpireSweepInterval time.Duration `default:"1m" envconfig:"EXPIRE_SWEEP_INTERVAL" json:"EXPIRE_SWEEP_INTERVAL"`
		AutoReleaseInterval time.Duration `default:"10m" envconfig:"AUTO_RELEASE_INTERVAL" json:"AUTO_RELEASE_INTERVAL"`
		RepairInterval      time.Duration `default:"5m" envconfig:"REPAIR_INTERVAL" json:"REPAIR_INTERVAL"`
	}
	Lightning struct {
		Host           string        `envconfig:"LIGHTNING_HOST" json:"LIGHTNING_HOST"`
		AuthToken      string        `envconfig:"LIGHTNING_AUTH_TOKEN" json:"LIGHTNING_AUTH_TOKEN" masked:"true"`
		RequestTimeout time.Duration `default:"10s" envconfig:"LIGHTNING_REQUEST_TIMEOUT" json:"LIGHTNING_REQUEST_TIMEOUT"`
	}
	Rates struct {
		Host           string        `envconfig:"RATES_HOST" json:"RATES_HOST"`
		RequestTimeout time.Duration `default:"10s" envconfig:"RATES_REQUEST_TIMEOUT" json:"RATES_REQUEST_TIMEOUT"`
		CacheTTL       time.Duration `default:"1m" envconfig:"RATES_CACHE_TTL" json:"RATES_CACHE_TTL"`
	}
	Redis struct {
		URL string `envconfig:"REDIS_URL" json:"REDIS_URL" masked:"true"`
	}
}
