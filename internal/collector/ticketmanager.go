package collector

import (
	"context"

	"go.uber.org/zap"

	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/persistence"
)

// TicketManager wraps the JIRA and Redmine clients, collecting tickets
// from whichever are configured and persisting each as a TicketResource.
type TicketManager struct {
	Jira    *JiraClient
	Redmine *RedmineClient

	logger *logging.Logger
}

// NewTicketManager builds a TicketManager. Either client may be nil, in
// which case that source is simply skipped.
func NewTicketManager(jira *JiraClient, redmine *RedmineClient, logger *logging.Logger) *TicketManager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &TicketManager{Jira: jira, Redmine: redmine, logger: logger}
}

// CollectAllFromConfig pulls every ticket from the configured sources and
// persists each one.
func (m *TicketManager) CollectAllFromConfig(ctx context.Context, p *persistence.Service) error {
	if m.Jira != nil {
		for _, t := range m.Jira.Collect(ctx) {
			if _, err := p.PersistTicket(ctx, t); err != nil {
				m.logger.Warn(ctx, "failed to persist JIRA ticket", zap.String("ticket_id", t.TicketID), zap.Error(err))
			}
		}
	}
	if m.Redmine != nil {
		for _, t := range m.Redmine.Collect(ctx) {
			if _, err := p.PersistTicket(ctx, t); err != nil {
				m.logger.Warn(ctx, "failed to persist Redmine ticket", zap.String("ticket_id", t.TicketID), zap.Error(err))
			}
		}
	}
	return nil
}
