package pg

import (
	"fmt"

	"github.com/openautogroup/lotview/internal/store"
)

// NewPGStores creates all stores backed by Postgres.
func NewPGStores(dsn string) (*store.Stores, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	return &store.Stores{
		Dealerships:   NewPGDealershipStore(db),
		Users:         NewPGUserStore(db),
		APITokens:     NewPGAPITokenStore(db),
		Vehicles:      NewPGVehicleStore(db),
		Conversations: NewPGConversationStore(db),
		Messages:      NewPGMessageStore(db),
		PostingQueue:  NewPGPostingStore(db),
		PostingTokens: NewPGPostingTokenStore(db),
		ScrapeRuns:    NewPGScrapeRunStore(db),
		Audit:         NewPGAuditStore(db),
		APILogs:       NewPGAPILogStore(db),
	}, nil
}
