// Package notify carries the core's outbound signals to downstream
// collaborators (mail, exports). Emission happens after commit; a failed
// emission is logged and never affects the transaction that produced it.
package notify

import (
	"time"

	"go.uber.org/zap"
)

// SampleFrozenEvent describes a completed freeze.
type SampleFrozenEvent struct {
	AccountID   uint64
	CampaignID  uint64
	SampleIDs   []uint64
	SegmentPath string
	FrozenAt    time.Time
}

// Notifier receives core events.
type Notifier interface {
	SampleFrozen(event SampleFrozenEvent) error
}

// LogNotifier records events in the process log. It stands in where no
// delivery collaborator is wired.
type LogNotifier struct {
	Log *zap.Logger
}

func (n *LogNotifier) SampleFrozen(event SampleFrozenEvent) error {
	n.Log.Info("sample_frozen",
		zap.Uint64("account_id", event.AccountID),
		zap.Uint64("campaign_id", event.CampaignID),
		zap.Uint64s("sample_ids", event.SampleIDs),
		zap.String("segment", event.SegmentPath),
		zap.Time("frozen_at", event.FrozenAt),
	)
	return nil
}
