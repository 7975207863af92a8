package battlevoting

import (
	"log/slog"
	"time"

	httpadapter "battlevoter/contexts/live-events/battle-voting/adapters/http"
	"battlevoter/contexts/live-events/battle-voting/adapters/memory"
	"battlevoter/contexts/live-events/battle-voting/application/commands"
	"battlevoter/contexts/live-events/battle-voting/application/eligibility"
	"battlevoter/contexts/live-events/battle-voting/application/livefeed"
	"battlevoter/contexts/live-events/battle-voting/application/queries"
	"battlevoter/contexts/live-events/battle-voting/domain/entities"
	"battlevoter/contexts/live-events/battle-voting/ports"
	"battlevoter/internal/platform/messaging"
)

type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store
	Hub     *messaging.Hub
}

type Dependencies struct {
	Contests        ports.ContestLookup
	Credentials     ports.CredentialVerifier
	Ledger          ports.VoteLedger
	TallyCache      ports.TallyCache
	RateLimiter     ports.RateLimiter
	Publisher       ports.TallyPublisher
	Subscriber      ports.TallySubscriber
	Clock           ports.Clock
	IDGen           ports.IDGenerator
	DuplicatePolicy entities.DuplicatePolicy
	TallyCacheTTL   time.Duration
	Heartbeat       time.Duration
	Logger          *slog.Logger
}

func NewModule(deps Dependencies) Module {
	policy := deps.DuplicatePolicy
	if !policy.Valid() {
		policy = entities.DuplicatePolicyRevote
	}
	tallies := queries.TallyAggregator{
		Ledger:   deps.Ledger,
		Cache:    deps.TallyCache,
		Clock:    deps.Clock,
		CacheTTL: deps.TallyCacheTTL,
		Logger:   deps.Logger,
	}
	gate := eligibility.Gate{
		Contests:    deps.Contests,
		Credentials: deps.Credentials,
		Logger:      deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Votes: commands.SubmitVoteUseCase{
				Gate:        gate,
				RateLimiter: deps.RateLimiter,
				Ledger:      deps.Ledger,
				Tallies:     tallies,
				Publisher:   deps.Publisher,
				Clock:       deps.Clock,
				IDGen:       deps.IDGen,
				Policy:      policy,
				Logger:      deps.Logger,
			},
			Tallies:  tallies,
			Contests: deps.Contests,
			Feed: livefeed.Feed{
				Contests:  deps.Contests,
				Tallies:   tallies,
				Hub:       deps.Subscriber,
				Heartbeat: deps.Heartbeat,
				Logger:    deps.Logger,
			},
			Logger: deps.Logger,
		},
	}
}

// InMemoryOptions tunes NewInMemoryModule. Zero values pick the production
// defaults of five requests per five minutes and revote semantics.
type InMemoryOptions struct {
	Credentials     ports.CredentialVerifier
	RateLimit       int
	RateWindow      time.Duration
	DuplicatePolicy entities.DuplicatePolicy
	SubscriberBuf   int
}

// NewInMemoryModule wires every port to process-local adapters. The store
// doubles as contest directory, ledger, clock and id generator.
func NewInMemoryModule(seed []entities.Contest, opts InMemoryOptions, logger *slog.Logger) Module {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = 5 * time.Minute
	}
	store := memory.NewStore(seed)
	hub := messaging.NewHub(opts.SubscriberBuf, logger)
	module := NewModule(Dependencies{
		Contests:        store,
		Credentials:     opts.Credentials,
		Ledger:          store,
		TallyCache:      memory.NewTallyCache(store),
		RateLimiter:     memory.NewRateLimiter(opts.RateLimit, opts.RateWindow, store),
		Publisher:       hub,
		Subscriber:      hub,
		Clock:           store,
		IDGen:           store,
		DuplicatePolicy: opts.DuplicatePolicy,
		TallyCacheTTL:   time.Hour,
		Logger:          logger,
	})
	module.Store = store
	module.Hub = hub
	return module
}
