package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/arungoks/tankerapp/internal/infrastructure/persistence/models"
	"github.com/arungoks/tankerapp/internal/infrastructure/stream"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const refreshTimeout = 10 * time.Second

// gormTable describes how one domain collection maps onto a table
type gormTable[M any, T any] struct {
	name       string
	order      string
	toDomain   func(*M) (T, error)
	fromDomain func(T) *M
	sort       func([]T)
}

func (d gormTable[M, T]) all(ctx context.Context, db *gorm.DB) ([]T, error) {
	var rows []M
	if err := db.WithContext(ctx).Order(d.order).Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	out := make([]T, 0, len(rows))
	for i := range rows {
		v, err := d.toDomain(&rows[i])
		if err != nil {
			return nil, shared.NewStoreUnavailable(fmt.Errorf("decode %s row: %w", d.name, err))
		}
		out = append(out, v)
	}
	d.sort(out)
	return out, nil
}

func (d gormTable[M, T]) upsert(ctx context.Context, db *gorm.DB, record T) error {
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(d.fromDomain(record)).Error
	return translateError(err)
}

// deleteWhere removes rows whose domain value matches. The predicate is
// evaluated in Go, then rows are deleted by primary key.
func (d gormTable[M, T]) deleteWhere(ctx context.Context, db *gorm.DB, match func(T) bool) (int, error) {
	var rows []M
	if err := db.WithContext(ctx).Find(&rows).Error; err != nil {
		return 0, translateError(err)
	}
	n := 0
	for i := range rows {
		v, err := d.toDomain(&rows[i])
		if err != nil {
			return n, shared.NewStoreUnavailable(fmt.Errorf("decode %s row: %w", d.name, err))
		}
		if !match(v) {
			continue
		}
		if err := db.WithContext(ctx).Delete(&rows[i]).Error; err != nil {
			return n, translateError(err)
		}
		n++
	}
	return n, nil
}

var (
	gormApartments = gormTable[models.ApartmentModel, tanker.Apartment]{
		name:       models.TableApartments,
		order:      "number",
		toDomain:   func(m *models.ApartmentModel) (tanker.Apartment, error) { return m.ToDomain(), nil },
		fromDomain: models.ApartmentModelFromDomain,
		sort:       tanker.SortApartments,
	}
	gormEvents = gormTable[models.TankerEventModel, tanker.TankerEvent]{
		name:       models.TableTankerEvents,
		order:      "date",
		toDomain:   (*models.TankerEventModel).ToDomain,
		fromDomain: models.TankerEventModelFromDomain,
		sort:       tanker.SortTankerEvents,
	}
	gormVacancies = gormTable[models.VacancyRecordModel, tanker.VacancyRecord]{
		name:       models.TableVacancyRecords,
		order:      "apartment_number, start_date",
		toDomain:   (*models.VacancyRecordModel).ToDomain,
		fromDomain: models.VacancyRecordModelFromDomain,
		sort:       tanker.SortVacancies,
	}
	gormOverrides = gormTable[models.OccupancyOverrideModel, tanker.OccupancyOverride]{
		name:       models.TableOccupancyOverrides,
		order:      "apartment_number, date",
		toDomain:   (*models.OccupancyOverrideModel).ToDomain,
		fromDomain: models.OccupancyOverrideModelFromDomain,
		sort:       tanker.SortOverrides,
	}
)

// GormStore is a tanker.Store backed by a relational database through GORM.
// Feeds are loaded on first subscription and refreshed after every commit
// that touched their table, and after change notifications from other
// processes sharing the database.
type GormStore struct {
	db       *Database
	logger   *zap.Logger
	notifier ChangeNotifier
	feedOpts []stream.Option

	apartments *gormCollection[models.ApartmentModel, tanker.Apartment]
	events     *gormCollection[models.TankerEventModel, tanker.TankerEvent]
	vacancies  *gormCollection[models.VacancyRecordModel, tanker.VacancyRecord]
	overrides  *gormCollection[models.OccupancyOverrideModel, tanker.OccupancyOverride]
	cycles     *gormCycles

	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// GormStoreOption configures a GormStore
type GormStoreOption func(*GormStore)

// WithStoreLogger sets the store logger
func WithStoreLogger(l *zap.Logger) GormStoreOption {
	return func(s *GormStore) {
		s.logger = l
	}
}

// WithChangeNotifier shares committed changes with other processes
func WithChangeNotifier(n ChangeNotifier) GormStoreOption {
	return func(s *GormStore) {
		s.notifier = n
	}
}

// WithFeedOptions configures the per-subscriber feed buffers
func WithFeedOptions(opts ...stream.Option) GormStoreOption {
	return func(s *GormStore) {
		s.feedOpts = opts
	}
}

// NewGormStore wraps an open database. The store takes ownership of db and
// closes it on Close.
func NewGormStore(db *Database, opts ...GormStoreOption) *GormStore {
	s := &GormStore{
		db:     db,
		logger: zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("store")

	s.apartments = newGormCollection(s, gormApartments)
	s.events = newGormCollection(s, gormEvents)
	s.vacancies = newGormCollection(s, gormVacancies)
	s.overrides = newGormCollection(s, gormOverrides)
	s.cycles = &gormCycles{store: s, feed: stream.NewFeed[[]tanker.BillingCycle](s.feedOpts...)}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if s.notifier != nil {
		go s.listen(ctx)
	} else {
		close(s.done)
	}
	return s
}

func (s *GormStore) Apartments() tanker.Collection[tanker.Apartment] {
	return s.apartments
}

func (s *GormStore) TankerEvents() tanker.Collection[tanker.TankerEvent] {
	return s.events
}

func (s *GormStore) Vacancies() tanker.Collection[tanker.VacancyRecord] {
	return s.vacancies
}

func (s *GormStore) Overrides() tanker.Collection[tanker.OccupancyOverride] {
	return s.overrides
}

func (s *GormStore) Cycles() tanker.CycleHistory {
	return s.cycles
}

// DB returns the underlying database
func (s *GormStore) DB() *Database {
	return s.db
}

// Transact runs fn in a database transaction
func (s *GormStore) Transact(ctx context.Context, fn func(tx tanker.Tables) error) error {
	return s.commit(ctx, func(tx *gormTx) error { return fn(tx) })
}

func (s *GormStore) commit(ctx context.Context, fn func(tx *gormTx) error) error {
	dirty := make(map[string]bool)
	err := s.db.DB.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{db: db, dirty: dirty})
	})
	if err != nil {
		return translateError(err)
	}
	if len(dirty) == 0 {
		return nil
	}

	tables := make([]string, 0, len(dirty))
	for name := range dirty {
		tables = append(tables, name)
	}
	// the commit already happened; a cancelled request must not skip the refresh
	bg := context.WithoutCancel(ctx)
	s.refresh(bg, tables...)
	if s.notifier != nil {
		if err := s.notifier.Publish(bg, tables...); err != nil {
			s.logger.Warn("Failed to publish store change", zap.Strings("tables", tables), zap.Error(err))
		}
	}
	return nil
}

// refresh reloads the feeds of the given tables
func (s *GormStore) refresh(ctx context.Context, tables ...string) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()
	for _, name := range tables {
		switch name {
		case models.TableApartments:
			s.apartments.reload(ctx)
		case models.TableTankerEvents:
			s.events.reload(ctx)
		case models.TableVacancyRecords:
			s.vacancies.reload(ctx)
		case models.TableOccupancyOverrides:
			s.overrides.reload(ctx)
		case models.TableBillingCycles:
			s.cycles.reload(ctx)
		}
	}
}

func (s *GormStore) listen(ctx context.Context) {
	defer close(s.done)
	err := s.notifier.Subscribe(ctx, func(tables []string) {
		s.logger.Debug("Remote store change", zap.Strings("tables", tables))
		s.refresh(ctx, tables...)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("Store change subscription ended", zap.Error(err))
	}
}

// Ping checks the database connection
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB.DB()
	if err != nil {
		return shared.NewStoreUnavailable(err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return shared.NewStoreUnavailable(err)
	}
	return nil
}

// Close stops change notifications, ends every subscription and closes the database
func (s *GormStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.apartments.feed.Close()
		s.events.feed.Close()
		s.vacancies.feed.Close()
		s.overrides.feed.Close()
		s.cycles.feed.Close()
		if s.notifier != nil {
			if nerr := s.notifier.Close(); nerr != nil {
				s.logger.Warn("Failed to close change notifier", zap.Error(nerr))
			}
		}
		err = s.db.Close()
	})
	return err
}

// gormCollection is the store-level view of one table
type gormCollection[M any, T any] struct {
	store *GormStore
	def   gormTable[M, T]
	feed  *stream.Feed[[]T]

	// mu serialises loads so feed values follow commit order
	mu     sync.Mutex
	loaded bool
}

func newGormCollection[M any, T any](s *GormStore, def gormTable[M, T]) *gormCollection[M, T] {
	return &gormCollection[M, T]{store: s, def: def, feed: stream.NewFeed[[]T](s.feedOpts...)}
}

func (c *gormCollection[M, T]) All(ctx context.Context) ([]T, error) {
	return c.def.all(ctx, c.store.db.DB)
}

func (c *gormCollection[M, T]) Upsert(ctx context.Context, record T) error {
	return c.store.commit(ctx, func(tx *gormTx) error {
		return gormTxTable[M, T]{tx: tx, def: c.def}.Upsert(ctx, record)
	})
}

func (c *gormCollection[M, T]) Delete(ctx context.Context, match func(T) bool) (int, error) {
	var n int
	err := c.store.commit(ctx, func(tx *gormTx) error {
		var err error
		n, err = gormTxTable[M, T]{tx: tx, def: c.def}.Delete(ctx, match)
		return err
	})
	return n, err
}

func (c *gormCollection[M, T]) Subscribe(ctx context.Context) (shared.Subscription[[]T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		out, err := c.def.all(ctx, c.store.db.DB)
		if err != nil {
			return nil, err
		}
		c.feed.Publish(out)
		c.loaded = true
	}
	return stream.Bind(ctx, c.feed.Subscribe()), nil
}

// reload publishes the current table content, or the failure to read it.
// Nothing is loaded until the first subscriber arrives.
func (c *gormCollection[M, T]) reload(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return
	}
	out, err := c.def.all(ctx, c.store.db.DB)
	if err != nil {
		c.store.logger.Error("Failed to refresh feed", zap.String("table", c.def.name), zap.Error(err))
		c.feed.Fail(asStoreUnavailable(err))
		return
	}
	c.feed.Publish(out)
}

// gormCycles is the store-level view of the cycle ledger
type gormCycles struct {
	store *GormStore
	feed  *stream.Feed[[]tanker.BillingCycle]

	mu     sync.Mutex
	loaded bool
}

func (c *gormCycles) History(ctx context.Context) ([]tanker.BillingCycle, error) {
	return loadCycles(ctx, c.store.db.DB)
}

func (c *gormCycles) Append(ctx context.Context, cycle tanker.BillingCycle) error {
	return c.store.commit(ctx, func(tx *gormTx) error {
		return gormLedger{tx}.Append(ctx, cycle)
	})
}

func (c *gormCycles) Boundary(ctx context.Context) (tanker.CycleBoundary, bool, error) {
	return loadBoundary(ctx, c.store.db.DB)
}

func (c *gormCycles) AdvanceBoundary(ctx context.Context, boundary tanker.CycleBoundary) error {
	return c.store.commit(ctx, func(tx *gormTx) error {
		return gormLedger{tx}.AdvanceBoundary(ctx, boundary)
	})
}

func (c *gormCycles) Subscribe(ctx context.Context) (shared.Subscription[[]tanker.BillingCycle], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		cycles, err := loadCycles(ctx, c.store.db.DB)
		if err != nil {
			return nil, err
		}
		c.feed.Publish(cycles)
		c.loaded = true
	}
	return stream.Bind(ctx, c.feed.Subscribe()), nil
}

func (c *gormCycles) reload(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return
	}
	cycles, err := loadCycles(ctx, c.store.db.DB)
	if err != nil {
		c.store.logger.Error("Failed to refresh feed", zap.String("table", models.TableBillingCycles), zap.Error(err))
		c.feed.Fail(asStoreUnavailable(err))
		return
	}
	c.feed.Publish(cycles)
}

// gormTx implements tanker.Tables inside a database transaction
type gormTx struct {
	db    *gorm.DB
	dirty map[string]bool
}

func (tx *gormTx) Apartments() tanker.Table[tanker.Apartment] {
	return gormTxTable[models.ApartmentModel, tanker.Apartment]{tx: tx, def: gormApartments}
}

func (tx *gormTx) TankerEvents() tanker.Table[tanker.TankerEvent] {
	return gormTxTable[models.TankerEventModel, tanker.TankerEvent]{tx: tx, def: gormEvents}
}

func (tx *gormTx) Vacancies() tanker.Table[tanker.VacancyRecord] {
	return gormTxTable[models.VacancyRecordModel, tanker.VacancyRecord]{tx: tx, def: gormVacancies}
}

func (tx *gormTx) Overrides() tanker.Table[tanker.OccupancyOverride] {
	return gormTxTable[models.OccupancyOverrideModel, tanker.OccupancyOverride]{tx: tx, def: gormOverrides}
}

func (tx *gormTx) Cycles() tanker.CycleLedger {
	return gormLedger{tx}
}

type gormTxTable[M any, T any] struct {
	tx  *gormTx
	def gormTable[M, T]
}

func (t gormTxTable[M, T]) All(ctx context.Context) ([]T, error) {
	return t.def.all(ctx, t.tx.db)
}

func (t gormTxTable[M, T]) Upsert(ctx context.Context, record T) error {
	if err := t.def.upsert(ctx, t.tx.db, record); err != nil {
		return err
	}
	t.tx.dirty[t.def.name] = true
	return nil
}

func (t gormTxTable[M, T]) Delete(ctx context.Context, match func(T) bool) (int, error) {
	n, err := t.def.deleteWhere(ctx, t.tx.db, match)
	if n > 0 {
		t.tx.dirty[t.def.name] = true
	}
	return n, err
}

type gormLedger struct {
	tx *gormTx
}

func (l gormLedger) History(ctx context.Context) ([]tanker.BillingCycle, error) {
	return loadCycles(ctx, l.tx.db)
}

func (l gormLedger) Append(ctx context.Context, cycle tanker.BillingCycle) error {
	if err := l.tx.db.WithContext(ctx).Create(models.BillingCycleModelFromDomain(cycle)).Error; err != nil {
		err = translateError(err)
		if errors.Is(err, shared.ErrAlreadyExists) {
			return shared.NewDomainError(shared.CodeAlreadyExists,
				"a billing cycle for "+cycle.StartDate.String()+".."+cycle.EndDate.String()+" is already archived")
		}
		return err
	}
	l.tx.dirty[models.TableBillingCycles] = true
	return nil
}

func (l gormLedger) Boundary(ctx context.Context) (tanker.CycleBoundary, bool, error) {
	return loadBoundary(ctx, l.tx.db)
}

func (l gormLedger) AdvanceBoundary(ctx context.Context, boundary tanker.CycleBoundary) error {
	m := models.CycleBoundaryModelFromDomain(boundary)
	if err := l.tx.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(m).Error; err != nil {
		return translateError(err)
	}
	l.tx.dirty[models.TableCycleBoundary] = true
	return nil
}

func loadCycles(ctx context.Context, db *gorm.DB) ([]tanker.BillingCycle, error) {
	var rows []models.BillingCycleModel
	if err := db.WithContext(ctx).Order("start_date").Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	out := make([]tanker.BillingCycle, 0, len(rows))
	for i := range rows {
		c, err := rows[i].ToDomain()
		if err != nil {
			return nil, shared.NewStoreUnavailable(fmt.Errorf("decode %s row: %w", models.TableBillingCycles, err))
		}
		out = append(out, c)
	}
	tanker.SortCycles(out)
	return out, nil
}

func loadBoundary(ctx context.Context, db *gorm.DB) (tanker.CycleBoundary, bool, error) {
	var m models.CycleBoundaryModel
	err := db.WithContext(ctx).Where("boundary_key = ?", models.CurrentBoundaryKey).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tanker.CycleBoundary{}, false, nil
	}
	if err != nil {
		return tanker.CycleBoundary{}, false, translateError(err)
	}
	b, err := m.ToDomain()
	if err != nil {
		return tanker.CycleBoundary{}, false, shared.NewStoreUnavailable(err)
	}
	return b, true, nil
}

// translateError maps driver errors onto domain error codes. Domain errors
// and context cancellation pass through unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var de *shared.DomainError
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.WrapDomainError(shared.CodeAlreadyExists, "record already exists", err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.WrapDomainError(shared.CodeNotFound, "record not found", err)
	default:
		return shared.NewStoreUnavailable(err)
	}
}

func asStoreUnavailable(err error) error {
	if errors.Is(err, shared.ErrStoreUnavailable) {
		return err
	}
	return shared.NewStoreUnavailable(err)
}
