package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/placement"
	"github.com/bigkaa/goartstore/archive-module/internal/repository"
	"github.com/bigkaa/goartstore/archive-module/internal/watermark"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- ArchivedItemRepository ---

// memItemRepo — ArchivedItemRepository в памяти.
type memItemRepo struct {
	mu       sync.Mutex
	items    []*model.ArchivedItem
	insertFn func(item *model.ArchivedItem) error
	findFn   func(candidates []string) (*model.ArchivedItem, error)
}

func (r *memItemRepo) Insert(_ context.Context, item *model.ArchivedItem) error {
	if r.insertFn != nil {
		if err := r.insertFn(item); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	cp.CreatedAt = time.Now()
	r.items = append(r.items, &cp)
	return nil
}

func (r *memItemRepo) FindByIdentities(_ context.Context, candidates []string) (*model.ArchivedItem, error) {
	if r.findFn != nil {
		return r.findFn(candidates)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *model.ArchivedItem
	for _, it := range r.items {
		if it.Deleted {
			continue
		}
		match := slices.Contains(candidates, it.ContentHash)
		for _, id := range it.Identities {
			if slices.Contains(candidates, id) {
				match = true
			}
		}
		if match && (found == nil || it.ArchivedAt.Before(found.ArchivedAt)) {
			found = it
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (r *memItemRepo) SearchByKeyword(_ context.Context, keyword string, limit int) ([]*model.ArchivedItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*model.ArchivedItem
	for _, it := range r.items {
		if !it.Deleted && !it.Duplicate && strings.Contains(strings.ToLower(it.DisplayName), strings.ToLower(keyword)) {
			cp := *it
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ArchivedAt.After(res[j].ArchivedAt) })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *memItemRepo) CountBetween(_ context.Context, from, to time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items {
		if !it.ArchivedAt.Before(from) && it.ArchivedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (r *memItemRepo) TopSubmitters(_ context.Context, from, to time.Time, limit int) ([]model.SubmitterCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[int64]*model.SubmitterCount{}
	for _, it := range r.items {
		if it.ArchivedAt.Before(from) || !it.ArchivedAt.Before(to) {
			continue
		}
		c, ok := counts[it.SubmitterID]
		if !ok {
			c = &model.SubmitterCount{SubmitterID: it.SubmitterID, SubmitterName: it.SubmitterName}
			counts[it.SubmitterID] = c
		}
		c.Count++
	}
	var res []model.SubmitterCount
	for _, c := range counts {
		res = append(res, *c)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Count != res[j].Count {
			return res[i].Count > res[j].Count
		}
		return res[i].SubmitterID < res[j].SubmitterID
	})
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *memItemRepo) ListSubmitterIDs(context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for _, it := range r.items {
		if !slices.Contains(ids, it.SubmitterID) {
			ids = append(ids, it.SubmitterID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *memItemRepo) GetByID(_ context.Context, id string) (*model.ArchivedItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.ID == id {
			cp := *it
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memItemRepo) SoftDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.ID == id && !it.Deleted {
			it.Deleted = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *memItemRepo) all() []*model.ArchivedItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.items)
}

// --- PendingRequestRepository ---

// memRequestRepo — PendingRequestRepository в памяти с условными переходами.
type memRequestRepo struct {
	mu     sync.Mutex
	nextID int64
	reqs   []*model.PendingRequest
	listFn func() ([]*model.PendingRequest, error)
}

func (r *memRequestRepo) Create(_ context.Context, req *model.PendingRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	req.ID = r.nextID
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	if req.Status == "" {
		req.Status = model.RequestPending
	}
	cp := *req
	r.reqs = append(r.reqs, &cp)
	return nil
}

func (r *memRequestRepo) GetByID(_ context.Context, id int64) (*model.PendingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.reqs {
		if req.ID == id {
			cp := *req
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memRequestRepo) pending(filter func(*model.PendingRequest) bool, limit, offset int) []*model.PendingRequest {
	var res []*model.PendingRequest
	for _, req := range r.reqs {
		if req.Status == model.RequestPending && filter(req) {
			cp := *req
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	if offset >= len(res) {
		return nil
	}
	res = res[offset:]
	if len(res) > limit {
		res = res[:limit]
	}
	return res
}

func (r *memRequestRepo) ListPending(_ context.Context, limit, offset int) ([]*model.PendingRequest, error) {
	if r.listFn != nil {
		return r.listFn()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending(func(*model.PendingRequest) bool { return true }, limit, offset), nil
}

func (r *memRequestRepo) ListPendingOlderThan(_ context.Context, before time.Time, limit int) ([]*model.PendingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending(func(req *model.PendingRequest) bool { return req.CreatedAt.Before(before) }, limit, 0), nil
}

func (r *memRequestRepo) Transition(_ context.Context, id int64, target model.RequestStatus, result []model.Match, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.reqs {
		if req.ID != id {
			continue
		}
		if !req.Status.CanTransitionTo(target) {
			return false, nil
		}
		now := time.Now()
		req.Status = target
		req.Result = result
		req.CloseReason = reason
		req.ResolvedAt = &now
		return true, nil
	}
	return false, repository.ErrNotFound
}

func (r *memRequestRepo) FulfillMatching(_ context.Context, name string, result []model.Match) ([]*model.PendingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*model.PendingRequest
	for _, req := range r.reqs {
		if req.Status != model.RequestPending || req.Extract == "" {
			continue
		}
		if !strings.Contains(strings.ToLower(name), strings.ToLower(req.Extract)) {
			continue
		}
		now := time.Now()
		req.Status = model.RequestFulfilled
		req.Result = result
		req.ResolvedAt = &now
		cp := *req
		res = append(res, &cp)
	}
	return res, nil
}

func (r *memRequestRepo) CountBetween(_ context.Context, from, to time.Time) (model.RequestCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var c model.RequestCounts
	for _, req := range r.reqs {
		if req.CreatedAt.Before(from) || !req.CreatedAt.Before(to) {
			continue
		}
		c.Total++
		switch req.Status {
		case model.RequestPending:
			c.Pending++
		case model.RequestFulfilled:
			c.Fulfilled++
		case model.RequestClosed:
			c.Closed++
		}
	}
	return c, nil
}

func (r *memRequestRepo) CountPending(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, req := range r.reqs {
		if req.Status == model.RequestPending {
			n++
		}
	}
	return n, nil
}

func (r *memRequestRepo) TopExtracts(_ context.Context, from, to time.Time, limit int) ([]model.ExtractCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[string]int{}
	for _, req := range r.reqs {
		if req.Extract != "" && !req.CreatedAt.Before(from) && req.CreatedAt.Before(to) {
			counts[req.Extract]++
		}
	}
	var res []model.ExtractCount
	for e, n := range counts {
		res = append(res, model.ExtractCount{Extract: e, Count: n})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Count != res[j].Count {
			return res[i].Count > res[j].Count
		}
		return res[i].Extract < res[j].Extract
	})
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *memRequestRepo) get(id int64) *model.PendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.reqs {
		if req.ID == id {
			cp := *req
			return &cp
		}
	}
	return nil
}

// --- внешние зависимости ---

// mockStrategy — placement.Strategy с функциональными полями.
type mockStrategy struct {
	placeFn  func(a placement.Artifact) (*placement.Placed, error)
	removeFn func(key string) error

	mu      sync.Mutex
	removed []string
}

func (m *mockStrategy) Place(_ context.Context, a placement.Artifact) (*placement.Placed, error) {
	return m.placeFn(a)
}

func (m *mockStrategy) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	m.removed = append(m.removed, key)
	m.mu.Unlock()
	if m.removeFn != nil {
		return m.removeFn(key)
	}
	return nil
}

func (m *mockStrategy) Remote() bool { return true }

// memBucket — удалённое хранилище в памяти. Ключи строятся так же,
// как у placement.Remote.
type memBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	removed []string
}

func (b *memBucket) Place(_ context.Context, a placement.Artifact) (*placement.Placed, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, err
	}
	key := placement.ObjectKey("r2", a.SubmittedAt, a.ID, a.DisplayName)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objects == nil {
		b.objects = make(map[string][]byte)
	}
	b.objects[key] = data
	return &placement.Placed{
		Key:    key,
		URL:    placement.PublicURL("https://cdn.example.com", key),
		Remote: true,
	}, nil
}

func (b *memBucket) Remove(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removed = append(b.removed, key)
	delete(b.objects, key)
	return nil
}

func (b *memBucket) Remote() bool { return true }

func (b *memBucket) object(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	return data, ok
}

func (b *memBucket) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// mockTransformer — Transformer с функциональным полем.
type mockTransformer struct {
	applyFn func(src string) watermark.Result
}

func (m *mockTransformer) Apply(_ context.Context, src string) watermark.Result {
	if m.applyFn != nil {
		return m.applyFn(src)
	}
	return watermark.Result{Path: src}
}

// mockIndexer — Indexer с функциональными полями.
type mockIndexer struct {
	enabled  bool
	upsertFn func(item *model.ArchivedItem) error
	searchFn func(query string, limit int) ([]model.Match, error)

	mu       sync.Mutex
	upserted []string
	deleted  []string
}

func (m *mockIndexer) Enabled() bool { return m.enabled }

func (m *mockIndexer) Upsert(_ context.Context, item *model.ArchivedItem) error {
	m.mu.Lock()
	m.upserted = append(m.upserted, item.ID)
	m.mu.Unlock()
	if m.upsertFn != nil {
		return m.upsertFn(item)
	}
	return nil
}

func (m *mockIndexer) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	m.deleted = append(m.deleted, id)
	m.mu.Unlock()
	return nil
}

func (m *mockIndexer) Search(_ context.Context, query string, limit int) ([]model.Match, error) {
	if m.searchFn != nil {
		return m.searchFn(query, limit)
	}
	return nil, nil
}

// chatCall — записанное действие в чате.
type chatCall struct {
	action  string
	groupID int64
	userID  int64
	text    string
	dur     time.Duration
}

// mockChat — Chat/Notifier, записывающий вызовы.
type mockChat struct {
	mu       sync.Mutex
	calls    []chatCall
	memberFn func(groupID, userID int64) (bool, error)
	postErr  error
}

func (m *mockChat) record(c chatCall) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.mu.Unlock()
}

func (m *mockChat) Post(_ context.Context, groupID int64, text string) (int64, error) {
	m.record(chatCall{action: "post", groupID: groupID, text: text})
	return 1, m.postErr
}

func (m *mockChat) Reply(_ context.Context, groupID, _ int64, text string) (int64, error) {
	m.record(chatCall{action: "reply", groupID: groupID, text: text})
	return 1, nil
}

func (m *mockChat) PostAndPin(_ context.Context, groupID int64, text string) (int64, error) {
	m.record(chatCall{action: "pin", groupID: groupID, text: text})
	return 1, m.postErr
}

func (m *mockChat) Mute(_ context.Context, groupID, userID int64, d time.Duration) error {
	m.record(chatCall{action: "mute", groupID: groupID, userID: userID, dur: d})
	return nil
}

func (m *mockChat) DeleteMessage(context.Context, int64) error {
	m.record(chatCall{action: "delete"})
	return nil
}

func (m *mockChat) IsMember(_ context.Context, groupID, userID int64) (bool, error) {
	m.record(chatCall{action: "is_member", groupID: groupID, userID: userID})
	if m.memberFn != nil {
		return m.memberFn(groupID, userID)
	}
	return false, nil
}

func (m *mockChat) byAction(action string) []chatCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []chatCall
	for _, c := range m.calls {
		if c.action == action {
			res = append(res, c)
		}
	}
	return res
}

// mockShortener — Shortener с функциональным полем.
type mockShortener struct {
	shortenFn func(ctx context.Context, u string) string
}

func (m *mockShortener) Shorten(ctx context.Context, u string) string {
	return m.shortenFn(ctx, u)
}
