package store

// Stores is the top-level container for all storage backends.
type Stores struct {
	Dealerships   DealershipStore
	Users         UserStore
	APITokens     APITokenStore
	Vehicles      VehicleStore
	Conversations ConversationStore
	Messages      MessageStore
	PostingQueue  PostingStore
	PostingTokens PostingTokenStore
	ScrapeRuns    ScrapeRunStore
	Audit         AuditStore
	APILogs       APILogStore
}
