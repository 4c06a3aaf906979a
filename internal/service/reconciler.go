package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"sitebuilder/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Reconciler — merges remote store changes into the session
// ─────────────────────────────────────────────────────────────
//
// The store is shared across editing sessions with no distributed lock,
// so remote changes surface by polling: a cheap fingerprint query per
// tick, a changed-since query only when the fingerprint moved. Changes
// are applied through the composer so the single-writer invariant for
// order re-indexing holds. Merging is last-write-wins per tuple; tuples
// the session wrote within the suppression window keep the local value.

// Reconciler polls the store for externally observed changes.
type Reconciler struct {
	pageID   string
	composer *Composer
	content  domain.ContentStore
	settings domain.SettingsStore
	emitter  EventEmitter
	logger   *zap.Logger

	// Interval between fingerprint polls. Zero means 2s.
	Interval time.Duration

	// ResyncSpec is the cron spec for periodic full rehydrates, which
	// pick up structural changes (adds, removes, reorders) made by other
	// sessions. Empty means "@every 5m".
	ResyncSpec string

	// Each stream keeps its own changed-since cursor. Advancing a shared
	// cursor past the newest content change would silently exclude any
	// older settings change observed in the same pass.
	lastContentFP    string
	lastSettingsFP   string
	lastContentSync  time.Time
	lastSettingsSync time.Time

	polling atomic.Bool
	stopCh  chan struct{}
	sched   *cron.Cron
}

// NewReconciler creates a Reconciler for the composer's page.
func NewReconciler(
	pageID string,
	composer *Composer,
	content domain.ContentStore,
	settings domain.SettingsStore,
	emitter EventEmitter,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		pageID:   pageID,
		composer: composer,
		content:  content,
		settings: settings,
		emitter:  emitter,
		logger:   logger,
	}
}

// Start begins the polling loop and the periodic full resync. Changes
// persisted before Start are the hydrate's business, not ours.
func (r *Reconciler) Start(ctx context.Context) {
	now := time.Now()
	r.lastContentSync = now
	r.lastSettingsSync = now
	r.stopCh = make(chan struct{})

	spec := r.ResyncSpec
	if spec == "" {
		spec = "@every 5m"
	}
	sched := cron.New()
	if _, err := sched.AddFunc(spec, func() {
		r.composer.Rehydrate(ctx)
	}); err != nil {
		r.logger.Warn("invalid resync spec", zap.String("spec", spec), zap.Error(err))
	} else {
		sched.Start()
		r.sched = sched
	}

	go r.pollLoop(ctx)
}

// Stop terminates polling. In-flight persistence writes elsewhere are
// not cancelled; callers drain them via Composer.WaitWrites.
func (r *Reconciler) Stop() {
	if r.stopCh != nil {
		close(r.stopCh)
	}
	if r.sched != nil {
		r.sched.Stop()
	}
}

func (r *Reconciler) pollLoop(ctx context.Context) {
	interval := r.Interval
	if interval == 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Check(ctx)
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Check runs one reconciliation pass. Exported so tests and the app can
// trigger a pass without the ticker. Overlapping passes are skipped.
func (r *Reconciler) Check(ctx context.Context) {
	if !r.polling.CompareAndSwap(false, true) {
		return
	}
	defer r.polling.Store(false)

	applied := 0
	discarded := 0

	contentFP := r.content.ContentFingerprint(ctx, r.pageID)
	if contentFP != "" && contentFP != r.lastContentFP {
		changes, err := r.content.ContentChangedSince(ctx, r.pageID, r.lastContentSync)
		if err != nil {
			r.logger.Warn("content poll failed", zap.String("page", r.pageID), zap.Error(err))
			return
		}
		for _, change := range changes {
			if r.composer.ApplyRemoteContent(ctx, change) {
				applied++
			} else {
				discarded++
			}
			if change.UpdatedAt.After(r.lastContentSync) {
				r.lastContentSync = change.UpdatedAt
			}
		}
		r.lastContentFP = contentFP
	}

	settingsFP := r.settings.SettingsFingerprint(ctx, r.pageID)
	if settingsFP != "" && settingsFP != r.lastSettingsFP {
		changes, err := r.settings.SettingsChangedSince(ctx, r.pageID, r.lastSettingsSync)
		if err != nil {
			r.logger.Warn("settings poll failed", zap.String("page", r.pageID), zap.Error(err))
			return
		}
		for _, change := range changes {
			if r.composer.ApplyRemoteSetting(ctx, change) {
				applied++
			} else {
				discarded++
			}
			if change.UpdatedAt.After(r.lastSettingsSync) {
				r.lastSettingsSync = change.UpdatedAt
			}
		}
		r.lastSettingsFP = settingsFP
	}

	if applied > 0 {
		r.emitter.Emit(ctx, EventReconciled, map[string]int{
			"applied":   applied,
			"discarded": discarded,
		})
	}
}
