package boardservice

import (
	"log/slog"

	httpadapter "rudefriend/contexts/community-board/board-service/adapters/http"
	"rudefriend/contexts/community-board/board-service/adapters/memory"
	"rudefriend/contexts/community-board/board-service/application/commands"
	"rudefriend/contexts/community-board/board-service/application/queries"
	"rudefriend/contexts/community-board/board-service/application/summaries"
	"rudefriend/contexts/community-board/board-service/application/workers"
	"rudefriend/contexts/community-board/board-service/domain/entities"
	"rudefriend/contexts/community-board/board-service/ports"
)

// Module is the composition surface for the board service.
// Runtime wiring consumes Handler and the workers; Store is set only by
// NewInMemoryModule for tests and local runs.
type Module struct {
	Handler     httpadapter.Handler
	OutboxRelay workers.OutboxRelay
	TallyRepair workers.TallyRepairer
	Store       *memory.Store
}

type Dependencies struct {
	UnitOfWork      ports.UnitOfWork
	Posts           ports.PostRepository
	Outbox          ports.OutboxRepository
	Publisher       ports.EventPublisher
	Hasher          ports.PasswordHasher
	Sanitizer       ports.TextSanitizer
	Metrics         ports.Metrics
	Clock           ports.Clock
	IDGenerator     ports.IDGenerator
	OutboxBatchSize int
	RepairBatchSize int
	Logger          *slog.Logger
}

func NewModule(deps Dependencies) Module {
	reconciler := summaries.Reconciler{
		Metrics: deps.Metrics,
		Logger:  deps.Logger,
	}

	handler := httpadapter.Handler{
		Votes: commands.VoteCoordinator{
			UnitOfWork: deps.UnitOfWork,
			Summaries:  reconciler,
			Clock:      deps.Clock,
			IDGen:      deps.IDGenerator,
			Metrics:    deps.Metrics,
			Logger:     deps.Logger,
		},
		Posts: commands.PostUseCase{
			UnitOfWork: deps.UnitOfWork,
			Summaries:  reconciler,
			Hasher:     deps.Hasher,
			Sanitizer:  deps.Sanitizer,
			Clock:      deps.Clock,
			IDGen:      deps.IDGenerator,
			Logger:     deps.Logger,
		},
		Reads: queries.PostQueries{
			Posts:  deps.Posts,
			Hasher: deps.Hasher,
		},
		Tally: queries.TallyQuery{
			UnitOfWork: deps.UnitOfWork,
			Summaries:  reconciler,
		},
		Logger: deps.Logger,
	}

	return Module{
		Handler: handler,
		OutboxRelay: workers.OutboxRelay{
			Outbox:    deps.Outbox,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			BatchSize: deps.OutboxBatchSize,
			Logger:    deps.Logger,
		},
		TallyRepair: workers.TallyRepairer{
			UnitOfWork: deps.UnitOfWork,
			Posts:      deps.Posts,
			Summaries:  reconciler,
			BatchSize:  deps.RepairBatchSize,
			Logger:     deps.Logger,
		},
	}
}

// NewInMemoryModule wires the board service against the in-memory store.
// Hasher, Sanitizer, Publisher and Metrics in deps are used as given; the
// storage, clock and id fields are replaced by the store.
func NewInMemoryModule(members []entities.Member, deps Dependencies) Module {
	store := memory.NewStore(members)
	deps.UnitOfWork = store
	deps.Posts = store
	deps.Outbox = store
	deps.Clock = store
	deps.IDGenerator = store
	module := NewModule(deps)
	module.Store = store
	return module
}
