package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"expensetracker/internal/analytics"
	"expensetracker/internal/core"
	"expensetracker/internal/events"
	"expensetracker/internal/log"
	"expensetracker/internal/storage"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrConcurrentUpdate means the persisted list kept changing under a
	// write until the retries ran out.
	ErrConcurrentUpdate = errors.New("expenses changed concurrently, try again")
)

const maxWriteAttempts = 5

// ExpenseService is the expense record store. Mutations are serialized: each
// one re-reads the persisted list, computes the next one, writes it with a
// compare-and-swap against what it read, and only then swaps it in memory and
// bumps the revision. Other processes sharing the KV therefore never lose
// writes. Reads return copies.
type ExpenseService struct {
	kv        storage.KV
	publisher events.Publisher
	logger    *log.Logger
	loc       *time.Location
	now       func() time.Time
	newID     func() string

	writeMu sync.Mutex
	// persisted is the raw value last read from or written to the KV.
	// Guarded by writeMu.
	persisted string

	mu       sync.RWMutex
	expenses []core.Expense
	revision int64
}

type Option func(*ExpenseService)

// WithLocation sets the time zone used as local time for analytics and
// date filters.
func WithLocation(loc *time.Location) Option {
	return func(s *ExpenseService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *ExpenseService) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *ExpenseService) { s.newID = newID }
}

func WithLogger(l *log.Logger) Option {
	return func(s *ExpenseService) { s.logger = l.WithComponent(log.ComponentExpense) }
}

// NewExpenseService builds an empty store; call Load to read persisted data.
// A nil publisher disables events.
func NewExpenseService(kv storage.KV, publisher events.Publisher, opts ...Option) *ExpenseService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	s := &ExpenseService{
		kv:        kv,
		publisher: publisher,
		logger:    log.FromContext(context.Background()).WithComponent(log.ComponentExpense),
		loc:       time.Local,
		now:       time.Now,
		newID:     uuid.NewString,
		expenses:  []core.Expense{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory list with the persisted one. A read or decode
// failure leaves an empty list and is only logged.
func (s *ExpenseService) Load(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	raw, list, err := s.fetch(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read expenses, starting empty",
			log.NewFields().WithOperation(log.OpLoad).WithError(err).WithErrorType(log.ErrorTypeDatabase).ToSlice()...)
		raw, list = "", []core.Expense{}
	}

	s.persisted = raw
	s.mu.Lock()
	s.expenses = list
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Expenses loaded",
		log.FieldOperation, log.OpLoad,
		log.FieldCount, len(list))
}

// Refresh picks up writes made by other processes. It reports whether the
// persisted list changed; a change bumps the revision.
func (s *ExpenseService) Refresh(ctx context.Context) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	raw, list, err := s.fetch(ctx)
	if err != nil {
		return false, err
	}
	if raw == s.persisted {
		return false, nil
	}
	rev := s.adopt(raw, list)
	s.logger.InfoContext(ctx, "Expenses changed in storage, reloaded",
		log.FieldOperation, log.OpLoad,
		log.FieldCount, len(list),
		log.FieldRevision, rev)
	return true, nil
}

// Watch calls Refresh every interval until ctx is done.
func (s *ExpenseService) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.WarnContext(ctx, "Failed to refresh expenses",
					log.NewFields().WithOperation(log.OpLoad).WithError(err).WithErrorType(log.ErrorTypeDatabase).ToSlice()...)
			}
		}
	}
}

// fetch reads the raw persisted value and decodes it. Only a KV failure is an
// error; an absent or malformed value decodes to an empty list so it can
// still be overwritten.
func (s *ExpenseService) fetch(ctx context.Context) (string, []core.Expense, error) {
	raw, found, err := s.kv.Get(ctx, storage.KeyExpenses)
	if err != nil {
		return "", nil, fmt.Errorf("read expenses: %w", err)
	}
	if !found || strings.TrimSpace(raw) == "" {
		return raw, []core.Expense{}, nil
	}

	var list []core.Expense
	if err := json.Unmarshal([]byte(raw), &list); err != nil || list == nil {
		s.logger.WarnContext(ctx, "Persisted expenses are not a list, treating as empty",
			log.NewFields().WithOperation(log.OpLoad).WithError(err).WithErrorType(log.ErrorTypeValidation).ToSlice()...)
		return raw, []core.Expense{}, nil
	}
	return raw, list, nil
}

// adopt installs a list read from the KV. Callers hold writeMu.
func (s *ExpenseService) adopt(raw string, list []core.Expense) int64 {
	s.persisted = raw
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses = list
	s.revision++
	return s.revision
}

// Expenses returns a copy of the list in store order (newest first by
// convention).
func (s *ExpenseService) Expenses() []core.Expense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Expense, len(s.expenses))
	copy(out, s.expenses)
	return out
}

func (s *ExpenseService) Get(id string) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.expenses, id); i >= 0 {
		return s.expenses[i], nil
	}
	return core.Expense{}, core.ErrExpenseNotFound
}

// Revision counts successful mutations and reloaded external changes since
// the service was built.
func (s *ExpenseService) Revision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Location is the time zone treated as local time.
func (s *ExpenseService) Location() *time.Location {
	return s.loc
}

// Now returns the service clock in its location.
func (s *ExpenseService) Now() time.Time {
	return s.now().In(s.loc)
}

// Add validates the draft, assigns an id and prepends the new record. An
// empty date is stamped with the current time; a category carrying only an
// id is resolved through the catalog.
func (s *ExpenseService) Add(ctx context.Context, d core.Draft) (core.Expense, error) {
	if strings.TrimSpace(d.Date) == "" {
		d.Date = core.FormatDate(s.now())
	}
	if d.Category.Name == "" {
		d.Category = core.LookupCategory(d.Category.ID)
	}
	if err := d.Validate(); err != nil {
		return core.Expense{}, err
	}
	amount, err := core.NormalizeAmount(d.Amount)
	if err != nil {
		return core.Expense{}, err
	}
	d.Amount = amount

	e := d.Build(s.newID())
	rev, err := s.mutate(ctx, log.OpCreate, func(list []core.Expense) ([]core.Expense, error) {
		next := make([]core.Expense, 0, len(list)+1)
		next = append(next, e)
		return append(next, list...), nil
	})
	if err != nil {
		return core.Expense{}, err
	}

	s.logger.InfoContext(ctx, "Expense added",
		log.NewFields().WithExpense(e).WithOperation(log.OpCreate).WithRevision(rev).ToSlice()...)
	s.publish(ctx, events.New(events.ExpenseCreated, e.ID, rev))
	return e, nil
}

// Update merges patch into the record with the given id. A missing id
// returns core.ErrExpenseNotFound and changes nothing.
func (s *ExpenseService) Update(ctx context.Context, id string, patch core.ExpensePatch) (core.Expense, error) {
	if err := patch.Validate(); err != nil {
		return core.Expense{}, err
	}

	var updated core.Expense
	rev, err := s.mutate(ctx, log.OpUpdate, func(list []core.Expense) ([]core.Expense, error) {
		i := indexOf(list, id)
		if i < 0 {
			return nil, core.ErrExpenseNotFound
		}
		if patch.Category != nil && patch.Category.Name == "" {
			c := core.LookupCategory(patch.Category.ID)
			patch.Category = &c
		}
		e := patch.Apply(list[i])
		if err := e.Validate(); err != nil {
			return nil, err
		}
		amount, err := core.NormalizeAmount(e.Amount)
		if err != nil {
			return nil, err
		}
		e.Amount = amount

		next := make([]core.Expense, len(list))
		copy(next, list)
		next[i] = e
		updated = e
		return next, nil
	})
	if err != nil {
		return core.Expense{}, err
	}

	s.logger.InfoContext(ctx, "Expense updated",
		log.NewFields().WithExpense(updated).WithOperation(log.OpUpdate).WithRevision(rev).ToSlice()...)
	s.publish(ctx, events.New(events.ExpenseUpdated, id, rev))
	return updated, nil
}

// Delete removes the record with the given id, or returns
// core.ErrExpenseNotFound.
func (s *ExpenseService) Delete(ctx context.Context, id string) error {
	rev, err := s.mutate(ctx, log.OpDelete, func(list []core.Expense) ([]core.Expense, error) {
		i := indexOf(list, id)
		if i < 0 {
			return nil, core.ErrExpenseNotFound
		}
		next := make([]core.Expense, 0, len(list)-1)
		next = append(next, list[:i]...)
		return append(next, list[i+1:]...), nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Expense deleted",
		log.FieldExpenseID, id,
		log.FieldOperation, log.OpDelete,
		log.FieldRevision, rev)
	s.publish(ctx, events.New(events.ExpenseDeleted, id, rev))
	return nil
}

// ClearAll empties the list.
func (s *ExpenseService) ClearAll(ctx context.Context) error {
	rev, err := s.mutate(ctx, log.OpClear, func([]core.Expense) ([]core.Expense, error) {
		return []core.Expense{}, nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Expenses cleared", log.FieldOperation, log.OpClear, log.FieldRevision, rev)
	s.publish(ctx, events.New(events.ExpensesCleared, "", rev))
	return nil
}

// Import replaces the whole list. The payload must be a list of objects with
// unique non-empty ids and valid fields; otherwise core.ErrInvalidImport is
// returned and the current data is left untouched.
func (s *ExpenseService) Import(ctx context.Context, data []byte, format string) (int, error) {
	list, err := decodeImport(data, format)
	if err != nil {
		s.logger.WarnContext(ctx, "Rejected expense import",
			log.NewFields().WithOperation(log.OpImport).WithError(err).WithErrorType(log.ErrorTypeValidation).ToSlice()...)
		return 0, err
	}

	rev, err := s.mutate(ctx, log.OpImport, func([]core.Expense) ([]core.Expense, error) {
		return list, nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "Expenses imported",
		log.FieldOperation, log.OpImport,
		log.FieldCount, len(list),
		log.FieldRevision, rev)
	s.publish(ctx, events.New(events.ExpensesImported, "", rev))
	return len(list), nil
}

// Export serializes the current list as indented JSON or YAML.
func (s *ExpenseService) Export(format string) ([]byte, error) {
	list := s.Expenses()
	switch normalizeFormat(format) {
	case FormatJSON:
		return json.MarshalIndent(list, "", "  ")
	case FormatYAML:
		return yaml.Marshal(list)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Analytics computes the dashboard snapshot and insights at the current time.
func (s *ExpenseService) Analytics() (analytics.Snapshot, analytics.Insights) {
	now := s.Now()
	snap := analytics.Compute(s.Expenses(), now)
	return snap, analytics.ComputeInsights(snap, now)
}

// Filter runs a transactions query. A nil Location in opts means the
// service location.
func (s *ExpenseService) Filter(opts analytics.FilterOptions) analytics.FilterResult {
	if opts.Location == nil {
		opts.Location = s.loc
	}
	return analytics.Filter(s.Expenses(), opts)
}

// mutate runs one read-compute-write cycle under the writer lock. The write
// only lands if the KV still holds what was read; otherwise the cycle is
// retried on the fresh value. The in-memory list and revision change only
// after a write succeeds.
func (s *ExpenseService) mutate(ctx context.Context, op string, fn func([]core.Expense) ([]core.Expense, error)) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for attempt := 1; ; attempt++ {
		raw, current, err := s.fetch(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to read expenses before write",
				log.NewFields().WithOperation(op).WithError(err).WithErrorType(log.ErrorTypeDatabase).ToSlice()...)
			return 0, err
		}
		if raw != s.persisted {
			s.adopt(raw, current)
		}

		next, err := fn(current)
		if err != nil {
			return 0, err
		}

		body, err := json.Marshal(next)
		if err != nil {
			return 0, fmt.Errorf("encode expenses: %w", err)
		}
		swapped, err := s.kv.CompareAndSwap(ctx, storage.KeyExpenses, raw, string(body))
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to persist expenses",
				log.NewFields().WithOperation(op).WithError(err).WithErrorType(log.ErrorTypeDatabase).ToSlice()...)
			return 0, fmt.Errorf("persist expenses: %w", err)
		}
		if swapped {
			return s.adopt(string(body), next), nil
		}
		if attempt == maxWriteAttempts {
			return 0, ErrConcurrentUpdate
		}
		s.logger.DebugContext(ctx, "Expenses changed during write, retrying",
			log.FieldOperation, op,
			"attempt", attempt)
	}
}

// publish never fails the mutation that produced the event.
func (s *ExpenseService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish expense event",
			log.FieldOperation, log.OpPublish,
			log.FieldEventID, e.ID,
			log.FieldEventType, e.Type,
			log.FieldError, err)
	}
}

func indexOf(list []core.Expense, id string) int {
	for i, e := range list {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func normalizeFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return FormatJSON
	case "yaml", "yml":
		return FormatYAML
	default:
		return format
	}
}

func decodeImport(data []byte, format string) ([]core.Expense, error) {
	var (
		list []core.Expense
		err  error
	)
	switch normalizeFormat(format) {
	case FormatJSON:
		list, err = decodeJSONList(data)
	case FormatYAML:
		list, err = decodeYAMLList(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(list))
	for i, e := range list {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", core.ErrInvalidImport, i, err)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", core.ErrInvalidImport, e.ID)
		}
		seen[e.ID] = struct{}{}
		amount, err := core.NormalizeAmount(e.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", core.ErrInvalidImport, i, err)
		}
		list[i].Amount = amount
	}
	return list, nil
}

func decodeJSONList(data []byte) ([]core.Expense, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil || raws == nil {
		return nil, fmt.Errorf("%w: expected a JSON list", core.ErrInvalidImport)
	}
	list := make([]core.Expense, 0, len(raws))
	for i, raw := range raws {
		if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
			return nil, fmt.Errorf("%w: record %d is not an object", core.ErrInvalidImport, i)
		}
		var e core.Expense
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", core.ErrInvalidImport, i, err)
		}
		list = append(list, e)
	}
	return list, nil
}

func decodeYAMLList(data []byte) ([]core.Expense, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidImport, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: expected a YAML list", core.ErrInvalidImport)
	}
	seq := doc.Content[0]
	list := make([]core.Expense, 0, len(seq.Content))
	for i, node := range seq.Content {
		if node.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: record %d is not a mapping", core.ErrInvalidImport, i)
		}
		var e core.Expense
		if err := node.Decode(&e); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", core.ErrInvalidImport, i, err)
		}
		list = append(list, e)
	}
	return list, nil
}
