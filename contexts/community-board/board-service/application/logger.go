package application

import (
	"log/slog"

	"rudefriend/contexts/community-board/board-service/domain/entities"
	"rudefriend/contexts/community-board/board-service/ports"
)

// ResolveLogger guarantees a non-nil logger for application/worker code paths.
func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// ResolveMetrics returns a recorder that drops everything when metrics is nil.
func ResolveMetrics(metrics ports.Metrics) ports.Metrics {
	if metrics == nil {
		return noopMetrics{}
	}
	return metrics
}

type noopMetrics struct{}

func (noopMetrics) VoteCast(entities.VoteOutcome) {}
func (noopMetrics) VoteRejected(string)           {}
func (noopMetrics) SummariesReconciled(string)    {}
func (noopMetrics) TallyRepaired(string)          {}
