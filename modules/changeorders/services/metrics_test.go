package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/approval"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/audit"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/changerequest"
	"github.com/iota-uz/changeorders/modules/changeorders/services"
)

func transitionCount(t *testing.T, from, to changerequest.Status) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "changeorders_workflow_transitions_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["from"] == string(from) && labels["to"] == string(to) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestTransitionsCountedOnlyOnCommit(t *testing.T) {
	failing := &failingAudit{}
	f := newFixture(t, func(d *services.Dependencies) {
		failing.Repository = d.Audit
		d.Audit = failing
	})
	ctx := context.Background()
	approver := uuid.New()

	t.Run("decision", func(t *testing.T) {
		cr := f.create(t, services.CreateParams{ApproverIDs: []uuid.UUID{approver}})
		_, err := f.svc.Submit(ctx, cr.ID, f.actorID)
		require.NoError(t, err)

		before := transitionCount(t, changerequest.StatusPendingReview, changerequest.StatusApproved)
		failing.failOn = audit.ActionApproved
		_, err = f.svc.Decide(ctx, cr.ID, approver, approval.DecisionApprove, "", approver)
		requireKind(t, err, services.KindUnexpected, "")
		require.InDelta(t, before, transitionCount(t, changerequest.StatusPendingReview, changerequest.StatusApproved), 0)

		failing.failOn = ""
		_, err = f.svc.Decide(ctx, cr.ID, approver, approval.DecisionApprove, "", approver)
		require.NoError(t, err)
		require.InDelta(t, before+1, transitionCount(t, changerequest.StatusPendingReview, changerequest.StatusApproved), 0)
	})

	t.Run("cancel", func(t *testing.T) {
		cr := f.create(t, services.CreateParams{})

		before := transitionCount(t, changerequest.StatusDraft, changerequest.StatusCancelled)
		failing.failOn = audit.ActionCancelled
		_, err := f.svc.Cancel(ctx, cr.ID, "duplicate", f.actorID)
		requireKind(t, err, services.KindUnexpected, "")
		require.InDelta(t, before, transitionCount(t, changerequest.StatusDraft, changerequest.StatusCancelled), 0)

		failing.failOn = ""
		_, err = f.svc.Cancel(ctx, cr.ID, "duplicate", f.actorID)
		require.NoError(t, err)
		require.InDelta(t, before+1, transitionCount(t, changerequest.StatusDraft, changerequest.StatusCancelled), 0)
	})
}
