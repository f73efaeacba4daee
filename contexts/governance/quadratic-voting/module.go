package quadraticvoting

import (
	"log/slog"

	httpadapter "quadvote/contexts/governance/quadratic-voting/adapters/http"
	"quadvote/contexts/governance/quadratic-voting/adapters/memory"
	"quadvote/contexts/governance/quadratic-voting/application/commands"
	"quadvote/contexts/governance/quadratic-voting/application/queries"
	"quadvote/contexts/governance/quadratic-voting/domain/entities"
	"quadvote/contexts/governance/quadratic-voting/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Votes   commands.VoteUseCase
	Results queries.ResultsUseCase
	Store   *memory.Store
}

type Dependencies struct {
	Store  ports.VoteStore
	Outbox ports.OutboxWriter
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

func NewModule(deps Dependencies) Module {
	voteUseCase := commands.VoteUseCase{
		Store:  deps.Store,
		Outbox: deps.Outbox,
		Clock:  deps.Clock,
		IDGen:  deps.IDGen,
		Logger: deps.Logger,
	}
	resultsUseCase := queries.ResultsUseCase{
		Store: deps.Store,
	}
	return Module{
		Handler: httpadapter.Handler{
			Votes:   voteUseCase,
			Results: resultsUseCase,
			Logger:  deps.Logger,
		},
		Votes:   voteUseCase,
		Results: resultsUseCase,
	}
}

func NewInMemoryModule(seed []entities.Vote, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Store:  store,
		Outbox: store,
		Clock:  store,
		IDGen:  store,
		Logger: logger,
	})
	module.Store = store
	return module
}
