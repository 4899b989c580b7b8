package handlers

import (
	"net/http"
	"time"

	"github.com/coincart/settlement-engine/internal/lightning"
	"github.com/coincart/settlement-engine/internal/mid"
	"github.com/coincart/settlement-engine/internal/platform/db"
	"github.com/coincart/settlement-engine/internal/platform/fault"
	"github.com/coincart/settlement-engine/internal/platform/web"
	"github.com/coincart/settlement-engine/internal/rates"
)

// Actor identity headers. The upstream auth layer authenticates the caller
// and forwards these.
const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"

	roleAdmin = "admin"
)

// API returns a handler for the full set of routes.
func API(config *web.Config, masterDB *db.DB, node lightning.NodeClient, prices rates.Source,
	invoiceExpiry time.Duration) http.Handler {

	app := web.New(config, mid.ErrorHandler, mid.CORS)

	// Register OPTIONS fallback handler for preflight requests.
	app.HandleOptions(mid.CORSHandler)

	hh := Health{
		MasterDB: masterDB,
	}
	app.Handle("GET", "/health", hh.Health)

	wh := Wallets{
		Config:   config,
		MasterDB: masterDB,
	}
	app.Handle("POST", "/wallets", wh.Create)
	app.Handle("GET", "/wallets", wh.List)
	app.Handle("GET", "/wallets/:id", wh.Fetch)
	app.Handle("DELETE", "/wallets/:id", wh.Deactivate)
	app.Handle("POST", "/wallets/:id/signers", wh.AddSigner)
	app.Handle("DELETE", "/wallets/:id/signers/:uid", wh.RemoveSigner)

	ah := Approvals{
		Config:   config,
		MasterDB: masterDB,
	}
	app.Handle("GET", "/wallets/:id/approvals", ah.ListByWallet)
	app.Handle("POST", "/approvals", ah.Propose)
	app.Handle("GET", "/approvals/:id", ah.Fetch)
	app.Handle("POST", "/approvals/:id/votes", ah.Vote)
	app.Handle("POST", "/approvals/:id/execute", ah.Execute)
	app.Handle("POST", "/approvals/:id/cancel", ah.Cancel)

	eh := Escrows{
		Config:   config,
		MasterDB: masterDB,
		Rates:    prices,
	}
	app.Handle("POST", "/escrows", eh.Create)
	app.Handle("GET", "/escrows/:id", eh.Fetch)
	app.Handle("POST", "/escrows/:id/fund", eh.Fund)
	app.Handle("POST", "/escrows/:id/release", eh.Release)
	app.Handle("POST", "/escrows/:id/refund", eh.Refund)
	app.Handle("POST", "/escrows/:id/cancel", eh.Cancel)
	app.Handle("POST", "/escrows/:id/milestones/:index/complete", eh.CompleteMilestone)
	app.Handle("POST", "/escrows/:id/milestones/:index/release", eh.ReleaseMilestone)
	app.Handle("POST", "/escrows/:id/disputes", eh.FileDispute)
	app.Handle("POST", "/escrows/:id/disputes/resolve", eh.ResolveDispute)

	lh := Lightning{
		Config:   config,
		MasterDB: masterDB,
		Node:     node,
		Rates:    prices,
		Expiry:   invoiceExpiry,
	}
	app.Handle("POST", "/lightning/invoices", lh.CreateInvoice)
	app.Handle("GET", "/lightning/invoices/:hash", lh.FetchInvoice)
	app.Handle("POST", "/lightning/invoices/:hash/confirm", lh.ConfirmPayment)

	ph := Payments{
		Config:   config,
		MasterDB: masterDB,
	}
	app.Handle("POST", "/payments/confirm", ph.Confirm)
	app.Handle("GET", "/payments/:hash", ph.Fetch)

	return app
}

// actorID extracts the authenticated user from the request headers.
func actorID(r *http.Request) (string, error) {
	id := r.Header.Get(headerUserID)
	if len(id) == 0 {
		return "", fault.Validation("%s header required", headerUserID)
	}
	return id, nil
}

// isAdmin reports whether the request carries the admin role.
func isAdmin(r *http.Request) bool {
	return r.Header.Get(headerUserRole) == roleAdmin
}
