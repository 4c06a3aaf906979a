package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sitebuilder/internal/domain"
	"sitebuilder/internal/registry"
)

// ─────────────────────────────────────────────────────────────
// Composer — canonical block sequence for one page session
// ─────────────────────────────────────────────────────────────
//
// One Composer owns the in-memory block list of one editing session.
// Structural mutations (Add/Duplicate/Remove/Reorder) are serialized by
// a mutex: policy checks, the in-memory mutation, and order re-indexing
// happen under the lock, so back-to-back operations always see a
// consistent pre-state. Persistence runs after the lock is released and
// is optimistic — a failing write never rolls the in-memory list back;
// the OpResult carries the error so the UI can surface a save status
// and retry.

// DefaultSuppressionWindow protects a local edit from being overwritten
// by its own echoed remote read.
const DefaultSuppressionWindow = 5 * time.Second

// Composer maintains the ordered block list for a page.
type Composer struct {
	pageID  string
	tier    domain.PlanTier
	catalog *registry.Registry

	content  domain.ContentStore
	settings domain.SettingsStore
	emitter  EventEmitter
	logger   *zap.Logger

	mu           sync.Mutex
	blocks       []*domain.Block
	pageSettings domain.Settings

	journal *editJournal
	writes  WriteTracker

	// SuppressionWindow overrides DefaultSuppressionWindow; tests only.
	SuppressionWindow time.Duration
}

// NewComposer creates a Composer for a page. Call Hydrate before use.
func NewComposer(
	pageID string,
	tier domain.PlanTier,
	catalog *registry.Registry,
	content domain.ContentStore,
	settings domain.SettingsStore,
	emitter EventEmitter,
	logger *zap.Logger,
) *Composer {
	return &Composer{
		pageID:            pageID,
		tier:              tier,
		catalog:           catalog,
		content:           content,
		settings:          settings,
		emitter:           emitter,
		logger:            logger,
		journal:           newEditJournal(nil),
		SuppressionWindow: DefaultSuppressionWindow,
	}
}

// Hydrate builds the block list from persisted content: sections ordered
// by stored position, then any enabled-but-rowless section appended in
// canonical order. A plan tier stored in the page settings overrides the
// configured one. Safe to call on an empty page.
func (c *Composer) Hydrate(ctx context.Context) {
	records := c.content.GetContent(ctx, c.pageID)
	pageSettings := c.settings.GetSettings(ctx, c.pageID)

	c.mu.Lock()
	c.pageSettings = pageSettings
	if tier := domain.PlanTier(pageSettings[domain.SettingPlanTier]); tier != "" {
		c.tier = tier
	}
	c.blocks = c.blocks[:0]
	present := make(map[domain.SectionKey]bool, len(records))
	for _, rec := range records {
		present[rec.Key] = true
		c.blocks = append(c.blocks, &domain.Block{
			ID:         uuid.New().String(),
			SectionKey: rec.Key,
			ModelID:    rec.Content.Model(),
			Content:    rec.Content,
		})
	}
	enabled := make(map[domain.SectionKey]bool)
	for _, key := range pageSettings.EnabledSections() {
		enabled[key] = true
	}
	for _, key := range c.catalog.CanonicalOrder() {
		if enabled[key] && !present[key] {
			content := domain.SectionContent{}
			c.blocks = append(c.blocks, &domain.Block{
				ID:         uuid.New().String(),
				SectionKey: key,
				Content:    content,
			})
		}
	}
	c.reindex()
	c.mu.Unlock()

	c.emitter.Emit(ctx, EventBlocksChanged, c.Blocks())
}

// Blocks returns a snapshot of the current block list.
func (c *Composer) Blocks() []domain.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Block, len(c.blocks))
	for i, b := range c.blocks {
		out[i] = *b
		out[i].Content = b.Content.Clone()
	}
	return out
}

// Settings returns a snapshot of the page settings.
func (c *Composer) Settings() domain.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pageSettings.Clone()
}

// def resolves the section rules for a key, falling back to the base
// section type for duplicated sections ("faq_2" → "faq").
func (c *Composer) def(key domain.SectionKey) (domain.SectionDef, bool) {
	if d, ok := c.catalog.Def(key); ok {
		return d, ok
	}
	return c.catalog.Def(key.Base())
}

// dynamicCount counts blocks whose section type is not fixed. Must be
// called with c.mu held.
func (c *Composer) dynamicCount() int {
	n := 0
	for _, b := range c.blocks {
		if d, ok := c.def(b.SectionKey); !ok || !d.Fixed {
			n++
		}
	}
	return n
}

// reindex assigns contiguous zero-based order values. Must be called
// with c.mu held.
func (c *Composer) reindex() {
	for i, b := range c.blocks {
		b.Order = i
	}
}

// sectionKeys snapshots the current section key sequence. Must be
// called with c.mu held.
func (c *Composer) sectionKeys() []domain.SectionKey {
	keys := make([]domain.SectionKey, len(c.blocks))
	for i, b := range c.blocks {
		keys[i] = b.SectionKey
	}
	return keys
}

// Add inserts a new block for the section immediately before the pinned
// tail block, or at the end when no tail exists.
func (c *Composer) Add(ctx context.Context, key domain.SectionKey, modelID string) domain.OpResult {
	c.mu.Lock()
	for _, b := range c.blocks {
		if b.SectionKey == key {
			c.mu.Unlock()
			return c.rejected(ctx, "add", fmt.Errorf("%w: %s", domain.ErrSectionExists, key))
		}
	}
	def, _ := c.def(key)
	if !def.Fixed && AtLimit(c.dynamicCount(), c.tier, c.catalog.Plans()) {
		c.mu.Unlock()
		return c.rejected(ctx, "add", domain.ErrQuotaExceeded)
	}

	block := &domain.Block{
		ID:         uuid.New().String(),
		SectionKey: key,
		ModelID:    modelID,
		Content:    domain.SectionContent{},
		IsNew:      true,
	}
	block.Content.SetModel(modelID)

	at := len(c.blocks)
	if at > 0 {
		if d, ok := c.def(c.blocks[at-1].SectionKey); ok && d.Pinned == domain.PinnedTail {
			at--
		}
	}
	c.blocks = append(c.blocks, nil)
	copy(c.blocks[at+1:], c.blocks[at:])
	c.blocks[at] = block
	c.reindex()
	keys := c.sectionKeys()
	saved := block.Content.Clone()
	order := block.Order
	c.journal.note(key, domain.ModelKey)
	c.mu.Unlock()

	c.emitter.Emit(ctx, EventBlocksChanged, c.Blocks())
	err := c.persist(ctx, "save content", func(ctx context.Context) error {
		return c.content.SaveContent(ctx, c.pageID, key, saved, order+1)
	})
	if err == nil {
		err = c.persist(ctx, "save order", func(ctx context.Context) error {
			return c.content.UpdateOrder(ctx, c.pageID, keys)
		})
	}
	return c.finish(ctx, "add", block, err)
}

// ChangeModel switches a block's layout variant. Pure metadata update:
// order is untouched; the reserved model field is upserted.
func (c *Composer) ChangeModel(ctx context.Context, blockID, modelID string) domain.OpResult {
	c.mu.Lock()
	block := c.find(blockID)
	if block == nil {
		c.mu.Unlock()
		return c.rejected(ctx, "change model", fmt.Errorf("%w: %s", domain.ErrBlockNotFound, blockID))
	}
	block.ModelID = modelID
	block.Content.SetModel(modelID)
	key := block.SectionKey
	c.journal.note(key, domain.ModelKey)
	c.mu.Unlock()

	c.emitter.Emit(ctx, EventContentUpdated, map[string]string{
		"blockId": blockID, "field": domain.ModelKey, "value": modelID,
	})
	err := c.persist(ctx, "save content", func(ctx context.Context) error {
		return c.content.SaveContent(ctx, c.pageID, key, domain.SectionContent{domain.ModelKey: modelID}, -1)
	})
	return c.finish(ctx, "change model", block, err)
}

// Duplicate clones a block's content verbatim into a new block inserted
// immediately after the source. The clone persists under a derived
// section key ("faq" → "faq_2") so its rows do not collide.
func (c *Composer) Duplicate(ctx context.Context, blockID string) domain.OpResult {
	c.mu.Lock()
	src := c.find(blockID)
	if src == nil {
		c.mu.Unlock()
		return c.rejected(ctx, "duplicate", fmt.Errorf("%w: %s", domain.ErrBlockNotFound, blockID))
	}
	def, ok := c.def(src.SectionKey)
	if !ok || def.Fixed || !def.Duplicable {
		c.mu.Unlock()
		return c.rejected(ctx, "duplicate", fmt.Errorf("%w: %s", domain.ErrNotDuplicable, src.SectionKey))
	}
	if AtLimit(c.dynamicCount(), c.tier, c.catalog.Plans()) {
		c.mu.Unlock()
		return c.rejected(ctx, "duplicate", domain.ErrQuotaExceeded)
	}

	clone := &domain.Block{
		ID:         uuid.New().String(),
		SectionKey: c.copyKey(src.SectionKey.Base()),
		ModelID:    src.ModelID,
		Content:    src.Content.Clone(),
		IsNew:      true,
	}
	at := src.Order + 1
	c.blocks = append(c.blocks, nil)
	copy(c.blocks[at+1:], c.blocks[at:])
	c.blocks[at] = clone
	c.reindex()
	keys := c.sectionKeys()
	saved := clone.Content.Clone()
	order := clone.Order
	for f := range saved {
		c.journal.note(clone.SectionKey, f)
	}
	c.mu.Unlock()

	c.emitter.Emit(ctx, EventBlocksChanged, c.Blocks())
	err := c.persist(ctx, "save content", func(ctx context.Context) error {
		return c.content.SaveContent(ctx, c.pageID, clone.SectionKey, saved, order+1)
	})
	if err == nil {
		err = c.persist(ctx, "save order", func(ctx context.Context) error {
			return c.content.UpdateOrder(ctx, c.pageID, keys)
		})
	}
	return c.finish(ctx, "duplicate", clone, err)
}

// copyKey derives the first free numbered variant of base. Must be
// called with c.mu held.
func (c *Composer) copyKey(base domain.SectionKey) domain.SectionKey {
	taken := make(map[domain.SectionKey]bool, len(c.blocks))
	for _, b := range c.blocks {
		taken[b.SectionKey] = true
	}
	for n := 2; ; n++ {
		candidate := domain.SectionKey(string(base) + "_" + strconv.Itoa(n))
		if !taken[candidate] {
			return candidate
		}
	}
}

// Remove deletes a block, its persisted content, and re-indexes the
// remaining blocks.
func (c *Composer) Remove(ctx context.Context, blockID string) domain.OpResult {
	c.mu.Lock()
	block := c.find(blockID)
	if block == nil {
		c.mu.Unlock()
		return c.rejected(ctx, "remove", fmt.Errorf("%w: %s", domain.ErrBlockNotFound, blockID))
	}
	def, ok := c.def(block.SectionKey)
	if !ok || !def.Removable {
		c.mu.Unlock()
		return c.rejected(ctx, "remove", fmt.Errorf("%w: %s", domain.ErrNotRemovable, block.SectionKey))
	}

	at := block.Order
	c.blocks = append(c.blocks[:at], c.blocks[at+1:]...)
	c.reindex()
	keys := c.sectionKeys()
	key := block.SectionKey
	c.mu.Unlock()

	c.emitter.Emit(ctx, EventBlocksChanged, c.Blocks())
	err := c.persist(ctx, "delete content", func(ctx context.Context) error {
		return c.content.DeleteContent(ctx, c.pageID, key)
	})
	if err == nil {
		err = c.persist(ctx, "save order", func(ctx context.Context) error {
			return c.content.UpdateOrder(ctx, c.pageID, keys)
		})
	}
	return c.finish(ctx, "remove", block, err)
}

// Reorder applies a caller-proposed full sequence of block ids. Fixed
// blocks keep their absolute positions; dynamic blocks fill the
// remaining slots in the caller-supplied relative order. The input must
// be a permutation of the current block ids (ErrInvalidOrder otherwise,
// checked before normalization).
func (c *Composer) Reorder(ctx context.Context, blockIDs []string) domain.OpResult {
	c.mu.Lock()
	if len(blockIDs) != len(c.blocks) {
		c.mu.Unlock()
		return c.rejected(ctx, "reorder", domain.ErrInvalidOrder)
	}
	byID := make(map[string]*domain.Block, len(c.blocks))
	for _, b := range c.blocks {
		byID[b.ID] = b
	}
	proposed := make([]*domain.Block, 0, len(blockIDs))
	seen := make(map[string]bool, len(blockIDs))
	for _, id := range blockIDs {
		b, ok := byID[id]
		if !ok || seen[id] {
			c.mu.Unlock()
			return c.rejected(ctx, "reorder", domain.ErrInvalidOrder)
		}
		seen[id] = true
		proposed = append(proposed, b)
	}

	c.blocks = c.normalize(proposed)
	c.reindex()
	keys := c.sectionKeys()
	c.mu.Unlock()

	c.emitter.Emit(ctx, EventBlocksChanged, c.Blocks())
	err := c.persist(ctx, "save order", func(ctx context.Context) error {
		return c.content.UpdateOrder(ctx, c.pageID, keys)
	})
	return c.finish(ctx, "reorder", nil, err)
}

// normalize enforces pinned and fixed positions: every fixed block stays
// at its current absolute index, dynamic blocks fill the remaining slots
// in proposed order. Deterministic for any permutation of the dynamic
// blocks. Must be called with c.mu held.
func (c *Composer) normalize(proposed []*domain.Block) []*domain.Block {
	n := len(c.blocks)
	out := make([]*domain.Block, n)
	isFixed := func(b *domain.Block) bool {
		d, ok := c.def(b.SectionKey)
		return ok && d.Fixed
	}
	for i, b := range c.blocks {
		if isFixed(b) {
			out[i] = b
		}
	}
	slot := 0
	for _, b := range proposed {
		if isFixed(b) {
			continue
		}
		for out[slot] != nil {
			slot++
		}
		out[slot] = b
	}
	return out
}

// SetField writes one content field on a block. Reserved fields are
// rejected at the boundary; the model field changes via ChangeModel.
func (c *Composer) SetField(ctx context.Context, blockID, field, value string) domain.OpResult {
	if strings.HasPrefix(field, domain.ReservedPrefix) {
		return c.rejected(ctx, "set field", fmt.Errorf("%w: %s", domain.ErrReservedField, field))
	}
	c.mu.Lock()
	block := c.find(blockID)
	if block == nil {
		c.mu.Unlock()
		return c.rejected(ctx, "set field", fmt.Errorf("%w: %s", domain.ErrBlockNotFound, blockID))
	}
	block.Content[field] = value
	key := block.SectionKey
	c.journal.note(key, field)
	c.mu.Unlock()

	c.emitter.Emit(ctx, EventContentUpdated, map[string]string{
		"blockId": blockID, "field": field, "value": value,
	})
	err := c.persist(ctx, "save content", func(ctx context.Context) error {
		return c.content.SaveContent(ctx, c.pageID, key, domain.SectionContent{field: value}, -1)
	})
	return c.finish(ctx, "set field", block, err)
}

// SetSetting writes one page-wide setting.
func (c *Composer) SetSetting(ctx context.Context, key, value string) domain.OpResult {
	c.mu.Lock()
	if c.pageSettings == nil {
		c.pageSettings = domain.Settings{}
	}
	c.pageSettings[key] = value
	c.journal.note("", key)
	c.mu.Unlock()

	err := c.persist(ctx, "save settings", func(ctx context.Context) error {
		return c.settings.SaveSettings(ctx, c.pageID, domain.Settings{key: value})
	})
	return c.finish(ctx, "set setting", nil, err)
}

// ── Remote application (reconciler entry points) ───────────

// ApplyRemoteContent merges an externally observed content change.
// Returns false when the change is discarded because the tuple was
// written locally within the suppression window.
func (c *Composer) ApplyRemoteContent(ctx context.Context, change domain.FieldChange) bool {
	if c.journal.recent(change.SectionKey, change.Field, c.SuppressionWindow) {
		return false
	}
	c.mu.Lock()
	var block *domain.Block
	for _, b := range c.blocks {
		if b.SectionKey == change.SectionKey {
			block = b
			break
		}
	}
	if block == nil {
		// A section added by another session; it joins the list ahead of
		// any pinned tail and settles on the next full rehydrate.
		block = &domain.Block{
			ID:         uuid.New().String(),
			SectionKey: change.SectionKey,
			Content:    domain.SectionContent{},
		}
		at := len(c.blocks)
		if at > 0 {
			if d, ok := c.def(c.blocks[at-1].SectionKey); ok && d.Pinned == domain.PinnedTail {
				at--
			}
		}
		c.blocks = append(c.blocks, nil)
		copy(c.blocks[at+1:], c.blocks[at:])
		c.blocks[at] = block
		c.reindex()
	}
	block.Content[change.Field] = change.Value
	if change.Field == domain.ModelKey {
		block.ModelID = change.Value
	}
	blockID := block.ID
	c.mu.Unlock()

	c.emitter.Emit(ctx, EventContentUpdated, map[string]string{
		"blockId": blockID, "field": change.Field, "value": change.Value,
	})
	return true
}

// ApplyRemoteSetting merges an externally observed settings change under
// the same suppression rule.
func (c *Composer) ApplyRemoteSetting(_ context.Context, change domain.FieldChange) bool {
	if c.journal.recent("", change.Field, c.SuppressionWindow) {
		return false
	}
	c.mu.Lock()
	if c.pageSettings == nil {
		c.pageSettings = domain.Settings{}
	}
	c.pageSettings[change.Field] = change.Value
	c.mu.Unlock()
	return true
}

// Rehydrate reloads the page from the store, keeping local values for
// tuples edited within the suppression window. Sections already on the
// page keep their block IDs so the editor's block identities survive a
// resync; the enabled-but-rowless derivation matches Hydrate.
func (c *Composer) Rehydrate(ctx context.Context) {
	records := c.content.GetContent(ctx, c.pageID)
	remoteSettings := c.settings.GetSettings(ctx, c.pageID)

	c.mu.Lock()
	local := make(map[string]string)
	ids := make(map[domain.SectionKey]string, len(c.blocks))
	for _, b := range c.blocks {
		ids[b.SectionKey] = b.ID
		for f, v := range b.Content {
			if c.journal.recent(b.SectionKey, f, c.SuppressionWindow) {
				local[tupleKey(b.SectionKey, f)] = v
			}
		}
	}
	for k, v := range c.pageSettings {
		if c.journal.recent("", k, c.SuppressionWindow) {
			remoteSettings[k] = v
		}
	}
	c.pageSettings = remoteSettings

	blockID := func(key domain.SectionKey) string {
		if id, ok := ids[key]; ok {
			return id
		}
		return uuid.New().String()
	}

	c.blocks = c.blocks[:0]
	present := make(map[domain.SectionKey]bool, len(records))
	for _, rec := range records {
		content := rec.Content
		for f := range content {
			if v, ok := local[tupleKey(rec.Key, f)]; ok {
				content[f] = v
			}
		}
		present[rec.Key] = true
		c.blocks = append(c.blocks, &domain.Block{
			ID:         blockID(rec.Key),
			SectionKey: rec.Key,
			ModelID:    content.Model(),
			Content:    content,
		})
	}
	enabled := make(map[domain.SectionKey]bool)
	for _, key := range remoteSettings.EnabledSections() {
		enabled[key] = true
	}
	for _, key := range c.catalog.CanonicalOrder() {
		if enabled[key] && !present[key] {
			c.blocks = append(c.blocks, &domain.Block{
				ID:         blockID(key),
				SectionKey: key,
				Content:    domain.SectionContent{},
			})
		}
	}
	c.reindex()
	c.mu.Unlock()

	c.journal.prune(c.SuppressionWindow)
	c.emitter.Emit(ctx, EventBlocksChanged, c.Blocks())
}

// WaitWrites blocks until in-flight persistence calls finish or ctx is
// cancelled. Shutdown drains writes rather than cancelling them.
func (c *Composer) WaitWrites(ctx context.Context) {
	c.writes.Wait(ctx)
}

// ── internals ──────────────────────────────────────────────

// find returns the block with the given id. Must be called with c.mu held.
func (c *Composer) find(blockID string) *domain.Block {
	for _, b := range c.blocks {
		if b.ID == blockID {
			return b
		}
	}
	return nil
}

// persist runs one persistence step, tracking it for shutdown draining
// and wrapping failures as PersistenceError.
func (c *Composer) persist(ctx context.Context, op string, fn func(context.Context) error) error {
	c.writes.Start()
	defer c.writes.Done()
	if err := fn(ctx); err != nil {
		c.logger.Warn("persistence failed",
			zap.String("page", c.pageID), zap.String("op", op), zap.Error(err))
		return &domain.PersistenceError{Op: op, Err: err}
	}
	return nil
}

// rejected reports a synchronous policy rejection: nothing mutated,
// nothing persisted.
func (c *Composer) rejected(ctx context.Context, op string, err error) domain.OpResult {
	c.emitter.Emit(ctx, EventSaveStatus, SaveStatus{Op: op, Persisted: false, Reason: err.Error()})
	return domain.OpResult{Err: err}
}

// finish reports an applied operation's persistence outcome.
func (c *Composer) finish(ctx context.Context, op string, block *domain.Block, err error) domain.OpResult {
	status := SaveStatus{Op: op, Persisted: err == nil}
	if err != nil {
		status.Reason = err.Error()
	}
	c.emitter.Emit(ctx, EventSaveStatus, status)
	return domain.OpResult{Block: block, AppliedLocally: true, Persisted: err == nil, Err: err}
}
