// Package listview holds the per-session view state of a moderated resource list:
// loaded records, filter predicates, pagination and the bulk-action selection.
package listview

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"linkoraadmin/internal/backend"
	"linkoraadmin/internal/debounce"
	"linkoraadmin/internal/logging"
	"linkoraadmin/internal/models"
)

type Mode string

const (
	ModeClient Mode = "client"
	ModeServer Mode = "server"
)

var (
	ErrUnknownFilter = errors.New("unknown filter field")
	ErrInvalidFilter = errors.New("invalid filter value")
	ErrUnknownRecord = errors.New("record not in view")
	ErrClosed        = errors.New("view closed")
)

// Filter fields. An empty value or "all" disables the predicate.
const (
	FieldSearch   = "search"
	FieldStatus   = "status"
	FieldGender   = "gender"
	FieldYear     = "year"
	FieldSeverity = "severity"
	FieldFrom     = "from"
	FieldTo       = "to"
)

var filterFields = map[models.Kind][]string{
	models.KindUsers:          {FieldSearch, FieldStatus, FieldGender, FieldYear, FieldFrom, FieldTo},
	models.KindCollaborations: {FieldSearch, FieldStatus, FieldFrom, FieldTo},
	models.KindReports:        {FieldSearch, FieldStatus, FieldSeverity, FieldFrom, FieldTo},
}

// Fetcher loads one page of records from the backend.
type Fetcher[E any] interface {
	List(ctx context.Context, q backend.ListQuery) (backend.ListPage[E], error)
}

type Options struct {
	Mode           Mode
	PageSize       int
	SearchDebounce time.Duration
	Logger         *zap.Logger
	// OnChange is called after a background refresh lands. It must not call back into the view.
	OnChange func()
}

// State is safe for concurrent use. Its lock is never held across a backend call.
type State[E models.Entity[E]] struct {
	mu sync.Mutex

	kind     models.Kind
	mode     Mode
	pageSize int
	fetcher  Fetcher[E]
	logger   *zap.Logger
	onChange func()

	records    []E
	visible    []E
	filters    map[string]string
	applied    string
	page       int
	totalPages int
	totalCount int
	selection  []string
	undo       []string
	hasUndo    bool
	selGen     uint64
	loading    bool
	lastErr    string
	loaded     bool

	search  *debounce.Debouncer[string]
	baseCtx context.Context
	stop    context.CancelFunc
	gen     uint64
	cancel  context.CancelFunc
	closed  bool
}

func New[E models.Entity[E]](kind models.Kind, fetcher Fetcher[E], opts Options) *State[E] {
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	if opts.Mode == "" {
		opts.Mode = ModeServer
	}
	baseCtx, stop := context.WithCancel(context.Background())
	s := &State[E]{
		kind:       kind,
		mode:       opts.Mode,
		pageSize:   opts.PageSize,
		fetcher:    fetcher,
		logger:     logging.OrNop(opts.Logger).Named("listview").With(zap.String("resource", string(kind))),
		onChange:   opts.OnChange,
		filters:    map[string]string{},
		page:       1,
		totalPages: 1,
		baseCtx:    baseCtx,
		stop:       stop,
	}
	s.search = debounce.New(opts.SearchDebounce, s.applySearch)
	return s
}

func (s *State[E]) Kind() models.Kind { return s.kind }
func (s *State[E]) Mode() Mode        { return s.mode }

// Loaded reports whether at least one fetch has succeeded.
func (s *State[E]) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Render returns the snapshot as an untyped value for callers that only serialise it.
func (s *State[E]) Render() any { return s.Snapshot() }

// Load fetches the initial data set.
func (s *State[E]) Load(ctx context.Context) error {
	return s.refresh(ctx)
}

// SetFilter updates one predicate. In server mode search text is applied after the
// debounce quiet period; every other field re-fetches immediately.
func (s *State[E]) SetFilter(ctx context.Context, field, value string) error {
	field = strings.ToLower(strings.TrimSpace(field))
	if !slices.Contains(filterFields[s.kind], field) {
		return fmt.Errorf("%w: %q for %s", ErrUnknownFilter, field, s.kind)
	}
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, "all") {
		value = ""
	}
	if field == FieldFrom || field == FieldTo {
		if _, err := parseDate(value); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if value == "" {
		delete(s.filters, field)
	} else {
		s.filters[field] = value
	}
	s.dropUndoLocked()
	if s.mode == ModeClient {
		s.page = 1
		if field == FieldSearch {
			s.applied = value
		}
		s.recomputeLocked()
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if field == FieldSearch {
		s.search.Push(value)
		return nil
	}
	s.mu.Lock()
	s.page = 1
	s.mu.Unlock()
	return s.refresh(ctx)
}

// FlushSearch applies a pending debounced search immediately.
func (s *State[E]) FlushSearch() bool {
	return s.search.Flush()
}

func (s *State[E]) applySearch(value string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.applied = value
	s.page = 1
	s.mu.Unlock()
	if err := s.refresh(context.Background()); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrClosed) {
		s.logger.Warn("debounced search refresh failed", zap.Error(err))
	}
	if s.onChange != nil {
		s.onChange()
	}
}

// ChangePage moves to page n. Out-of-range pages leave the state untouched and return false.
func (s *State[E]) ChangePage(ctx context.Context, n int) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	if n < 1 || n > s.totalPages {
		s.mu.Unlock()
		return false, nil
	}
	prev := s.page
	s.page = n
	s.dropUndoLocked()
	if s.mode == ModeClient {
		s.recomputeLocked()
		s.mu.Unlock()
		return true, nil
	}
	s.mu.Unlock()
	if err := s.refresh(ctx); err != nil {
		s.mu.Lock()
		if s.page == n {
			s.page = prev
		}
		s.mu.Unlock()
		return false, err
	}
	return true, nil
}

// ToggleSelect adds or removes one visible record from the selection.
func (s *State[E]) ToggleSelect(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOfVisibleLocked(id) < 0 {
		return ErrUnknownRecord
	}
	s.dropUndoLocked()
	s.selGen++
	if i := slices.Index(s.selection, id); i >= 0 {
		s.selection = slices.Delete(s.selection, i, i+1)
		return nil
	}
	s.selection = append(s.selection, id)
	return nil
}

// ToggleSelectAll selects every visible record, or clears the selection when all are
// already selected. A second consecutive call restores the selection from before the first.
func (s *State[E]) ToggleSelectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selGen++
	if s.hasUndo {
		s.selection = s.undo
		s.undo = nil
		s.hasUndo = false
		return
	}
	s.undo = slices.Clone(s.selection)
	s.hasUndo = true
	if len(s.visible) > 0 && len(s.selection) == len(s.visible) && s.allVisibleSelectedLocked() {
		s.selection = nil
		return
	}
	next := make([]string, 0, len(s.visible))
	for _, e := range s.visible {
		next = append(next, e.Key())
	}
	s.selection = next
}

// Selection returns the selected ids in selection order.
func (s *State[E]) Selection() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.selection)
}

// Deselect drops id from the selection, if present.
func (s *State[E]) Deselect(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.selection, id); i >= 0 {
		s.selection = slices.Delete(s.selection, i, i+1)
		s.selGen++
		s.dropUndoLocked()
	}
}

// reselectLocked puts id back at position pos of the selection when it is visible and
// not already selected.
func (s *State[E]) reselectLocked(id string, pos int) {
	if pos < 0 || slices.Contains(s.selection, id) || s.indexOfVisibleLocked(id) < 0 {
		return
	}
	pos = min(pos, len(s.selection))
	s.selection = slices.Insert(s.selection, pos, id)
}

// Checkpoint is the page and selection state captured before an optimistic change.
type Checkpoint struct {
	page      int
	selection []string
	undo      []string
	hasUndo   bool
	selGen    uint64
}

func (s *State[E]) Checkpoint() Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Checkpoint{
		page:      s.page,
		selection: slices.Clone(s.selection),
		undo:      slices.Clone(s.undo),
		hasUndo:   s.hasUndo,
		selGen:    s.selGen,
	}
}

// Restore puts before back in the loaded set, over the record with the same key or at
// index when it was removed, and returns the page to where cp left it. When nobody
// changed the selection since cp it is restored as it was; otherwise only before's
// position in it is.
func (s *State[E]) Restore(before E, index int, cp Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := before.Key()
	found := false
	for i := range s.records {
		if s.records[i].Key() == id {
			s.records[i] = before
			found = true
			break
		}
	}
	if !found {
		index = max(0, min(index, len(s.records)))
		s.records = slices.Insert(s.records, index, before)
		if s.mode == ModeServer {
			s.totalCount++
		}
	}
	s.page = cp.page
	s.recomputeLocked()

	if s.selGen == cp.selGen {
		kept := make([]string, 0, len(cp.selection)+len(s.selection))
		for _, k := range cp.selection {
			if s.indexOfVisibleLocked(k) >= 0 {
				kept = append(kept, k)
			}
		}
		for _, k := range s.selection {
			if !slices.Contains(kept, k) {
				kept = append(kept, k)
			}
		}
		s.selection = kept
		s.undo = slices.Clone(cp.undo)
		s.hasUndo = cp.hasUndo
		return
	}
	s.reselectLocked(id, slices.Index(cp.selection, id))
}

// Get returns the loaded record for id and its position in the loaded set.
func (s *State[E]) Get(id string) (E, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.records {
		if e.Key() == id {
			return e, i, true
		}
	}
	var zero E
	return zero, -1, false
}

// Replace swaps the loaded record with the same key for e.
func (s *State[E]) Replace(e E) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].Key() == e.Key() {
			s.records[i] = e
			s.recomputeLocked()
			return true
		}
	}
	return false
}

// Remove drops the record for id and returns it with its former position.
func (s *State[E]) Remove(id string) (E, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.records {
		if e.Key() == id {
			s.records = slices.Delete(s.records, i, i+1)
			if s.mode == ModeServer && s.totalCount > 0 {
				s.totalCount--
			}
			s.recomputeLocked()
			return e, i, true
		}
	}
	var zero E
	return zero, -1, false
}

// Close cancels in-flight fetches and pending debounced searches.
func (s *State[E]) Close() {
	s.search.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.stop()
}

func (s *State[E]) refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	fctx, cancel := context.WithCancel(s.baseCtx)
	stopAfter := context.AfterFunc(ctx, cancel)
	s.cancel = cancel
	s.loading = true
	q := s.queryLocked()
	s.mu.Unlock()

	res, err := s.fetcher.List(fctx, q)
	stopAfter()

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.closed {
		cancel()
		return nil
	}
	cancel()
	s.cancel = nil
	s.loading = false
	if err != nil {
		s.lastErr = err.Error()
		s.logger.Warn("list fetch failed", zap.Error(err))
		return err
	}
	s.lastErr = ""
	s.loaded = true
	s.records = res.Items
	if s.mode == ModeServer {
		s.totalCount = res.TotalCount
		s.totalPages = max(1, res.TotalPages)
		if res.CurrentPage > 0 {
			s.page = min(res.CurrentPage, s.totalPages)
		}
	}
	s.recomputeLocked()
	return nil
}

func (s *State[E]) queryLocked() backend.ListQuery {
	if s.mode == ModeClient {
		return backend.ListQuery{}
	}
	return backend.ListQuery{
		Search:   s.applied,
		Status:   s.filters[FieldStatus],
		Gender:   s.filters[FieldGender],
		Year:     s.filters[FieldYear],
		Severity: s.filters[FieldSeverity],
		From:     s.filters[FieldFrom],
		To:       s.filters[FieldTo],
		Page:     s.page,
		Limit:    s.pageSize,
	}
}

func (s *State[E]) recomputeLocked() {
	prev := s.visible
	if s.mode == ModeServer {
		s.visible = s.records
	} else {
		filtered := make([]E, 0, len(s.records))
		for _, e := range s.records {
			if Matches(e, s.filters) {
				filtered = append(filtered, e)
			}
		}
		s.totalCount = len(filtered)
		s.totalPages = max(1, (len(filtered)+s.pageSize-1)/s.pageSize)
		s.page = max(1, min(s.page, s.totalPages))
		start := (s.page - 1) * s.pageSize
		end := min(start+s.pageSize, len(filtered))
		s.visible = filtered[start:end]
	}
	if !sameKeys(prev, s.visible) {
		s.dropUndoLocked()
	}
	s.intersectSelectionLocked()
}

// dropUndoLocked forgets the select-all snapshot; it only survives two consecutive
// ToggleSelectAll calls over the same visible list.
func (s *State[E]) dropUndoLocked() {
	s.hasUndo = false
	s.undo = nil
}

func sameKeys[E models.Record](a, b []E) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key() != b[i].Key() {
			return false
		}
	}
	return true
}

func (s *State[E]) intersectSelectionLocked() {
	if len(s.selection) == 0 {
		return
	}
	kept := s.selection[:0:0]
	for _, id := range s.selection {
		if s.indexOfVisibleLocked(id) >= 0 {
			kept = append(kept, id)
		}
	}
	if len(kept) != len(s.selection) {
		s.dropUndoLocked()
	}
	s.selection = kept
}

func (s *State[E]) indexOfVisibleLocked(id string) int {
	for i, e := range s.visible {
		if e.Key() == id {
			return i
		}
	}
	return -1
}

func (s *State[E]) allVisibleSelectedLocked() bool {
	for _, e := range s.visible {
		if !slices.Contains(s.selection, e.Key()) {
			return false
		}
	}
	return true
}
