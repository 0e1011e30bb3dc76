package billing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/arungoks/tankerapp/internal/infrastructure/stream"
	"github.com/arungoks/tankerapp/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultArchiveTimeout = 30 * time.Second

// BillingService is the consumer-facing API of the billing engine: live bill
// and history subscriptions, cycle closing, and the mutations of
// MutationGateway.
//
// The open cycle boundary is read from the store once, on Start or first use,
// and afterwards only changes through CloseCycle.
type BillingService struct {
	*MutationGateway

	store      tanker.Store
	aggregator *SnapshotAggregator
	archiver   *CycleArchiver
	publisher  shared.EventPublisher
	metrics    *telemetry.BillingMetrics
	logger     *zap.Logger
	now        func() time.Time
	location   *time.Location

	archive         ArchiveStore
	archiveRenderer ReportRenderer
	archiveTimeout  time.Duration

	closeMu    sync.Mutex
	mu         sync.Mutex
	boundary   tanker.CycleBoundary
	loaded     bool
	boundaries *stream.Feed[tanker.CycleBoundary]
}

// ServiceOption configures a BillingService
type ServiceOption func(*BillingService)

// WithPublisher publishes CycleClosed events to p
func WithPublisher(p shared.EventPublisher) ServiceOption {
	return func(s *BillingService) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithMetrics records cycle closes and bill computations
func WithMetrics(m *telemetry.BillingMetrics) ServiceOption {
	return func(s *BillingService) { s.metrics = m }
}

// WithLocation sets the time zone that decides what "today" is
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *BillingService) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) ServiceOption {
	return func(s *BillingService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCycleArchive uploads the report of every closed cycle to store,
// rendered by renderer
func WithCycleArchive(store ArchiveStore, renderer ReportRenderer) ServiceOption {
	return func(s *BillingService) {
		s.archive = store
		s.archiveRenderer = renderer
	}
}

// NewBillingService creates a BillingService
func NewBillingService(
	store tanker.Store,
	aggregator *SnapshotAggregator,
	gateway *MutationGateway,
	archiver *CycleArchiver,
	logger *zap.Logger,
	opts ...ServiceOption,
) *BillingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &BillingService{
		MutationGateway: gateway,
		store:           store,
		aggregator:      aggregator,
		archiver:        archiver,
		publisher:       shared.NoopEventPublisher{},
		logger:          logger.Named("billing"),
		now:             time.Now,
		location:        time.Local,
		archiveTimeout:  defaultArchiveTimeout,
		boundaries:      stream.NewFeed[tanker.CycleBoundary](stream.WithBuffer(1)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the open cycle boundary
func (s *BillingService) Start(ctx context.Context) error {
	b, err := s.Boundary(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("Billing service started", zap.Stringer("last_report_date", b.StartDate))
	return nil
}

// Today returns the current date in the service's time zone
func (s *BillingService) Today() tanker.Date {
	return tanker.DateOf(s.now().In(s.location))
}

// Boundary returns the open cycle boundary. When no cycle was ever closed it
// is the last day of the month before today.
func (s *BillingService) Boundary(ctx context.Context) (tanker.CycleBoundary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.boundary, nil
	}
	if err := s.reloadBoundaryLocked(ctx); err != nil {
		return tanker.CycleBoundary{}, err
	}
	return s.boundary, nil
}

func (s *BillingService) reloadBoundaryLocked(ctx context.Context) error {
	b, ok, err := s.store.Cycles().Boundary(ctx)
	if err != nil {
		return err
	}
	if !ok {
		b = tanker.DefaultCycleBoundary(s.Today())
	}
	s.setBoundaryLocked(b)
	return nil
}

func (s *BillingService) setBoundaryLocked(b tanker.CycleBoundary) {
	s.boundary = b
	s.loaded = true
	s.boundaries.Publish(b)
}

// Bills computes the bills for r once
func (s *BillingService) Bills(ctx context.Context, r tanker.DateRange) ([]tanker.ApartmentBill, error) {
	report, err := s.Report(ctx, r)
	if err != nil {
		return nil, err
	}
	return report.Bills, nil
}

// Report computes a Report for r from the store's current state
func (s *BillingService) Report(ctx context.Context, r tanker.DateRange) (Report, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "report")
	defer span.End()
	if r.From != nil {
		telemetry.SetAttributes(span, telemetry.SpanAttrCycleStart, *r.From)
	}
	if r.To != nil {
		telemetry.SetAttributes(span, telemetry.SpanAttrCycleEnd, *r.To)
	}

	if err := r.Validate(); err != nil {
		telemetry.RecordError(span, err)
		return Report{}, err
	}
	snap, err := tanker.LoadSnapshot(ctx, s.store)
	if err != nil {
		telemetry.RecordError(span, err)
		return Report{}, err
	}
	start := time.Now()
	report := NewReport(snap, r, s.now())
	s.metrics.RecordBillComputation(ctx, time.Since(start))
	return report, nil
}

// CurrentReport computes a Report for the open cycle
func (s *BillingService) CurrentReport(ctx context.Context) (Report, error) {
	b, err := s.Boundary(ctx)
	if err != nil {
		return Report{}, err
	}
	return s.Report(ctx, b.OpenRange())
}

// SubscribeBills streams the bills for (from, to], recomputed on every
// snapshot. A nil bound is unbounded.
func (s *BillingService) SubscribeBills(ctx context.Context, from, to *tanker.Date) (shared.Subscription[[]tanker.ApartmentBill], error) {
	r := tanker.DateRange{From: from, To: to}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	snaps, err := s.aggregator.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	return stream.Map(snaps, func(snap tanker.AggregateSnapshot) []tanker.ApartmentBill {
		return s.computeBills(ctx, snap, r)
	}), nil
}

// SubscribeCurrentBills streams the bills of the open cycle. Closing a cycle
// moves the range forward, so the stream then restarts from zero totals.
func (s *BillingService) SubscribeCurrentBills(ctx context.Context) (shared.Subscription[[]tanker.ApartmentBill], error) {
	if _, err := s.Boundary(ctx); err != nil {
		return nil, err
	}
	snaps, err := s.aggregator.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	bounds := s.boundaries.Subscribe()

	feed := stream.NewFeed[[]tanker.ApartmentBill]()
	out := feed.Subscribe()
	go func() {
		defer feed.Close()
		defer snaps.Close()
		defer bounds.Close()

		var (
			snap      tanker.AggregateSnapshot
			boundary  tanker.CycleBoundary
			haveSnap  bool
			haveBound bool
		)
		snapErrs := snaps.Errors()
		for {
			select {
			case <-out.Done():
				return
			case v, ok := <-snaps.Updates():
				if !ok {
					return
				}
				snap, haveSnap = v, true
			case b, ok := <-bounds.Updates():
				if !ok {
					return
				}
				boundary, haveBound = b, true
			case err, ok := <-snapErrs:
				if !ok {
					snapErrs = nil
				} else {
					feed.Fail(err)
				}
				continue
			}
			if haveSnap && haveBound {
				r := boundary.OpenRange()
				s.metrics.RecordCurrentCycleTankers(ctx, tanker.TotalTankers(snap.Events, r))
				feed.Publish(s.computeBills(ctx, snap, r))
			}
		}
	}()
	return stream.Bind(ctx, out), nil
}

func (s *BillingService) computeBills(ctx context.Context, snap tanker.AggregateSnapshot, r tanker.DateRange) []tanker.ApartmentBill {
	start := time.Now()
	bills := tanker.ComputeBills(snap, r)
	s.metrics.RecordBillComputation(ctx, time.Since(start))
	return bills
}

// SubscribeHistory streams the archived cycles, oldest first
func (s *BillingService) SubscribeHistory(ctx context.Context) (shared.Subscription[[]tanker.BillingCycle], error) {
	sub, err := s.store.Cycles().Subscribe(ctx)
	if err != nil {
		if shared.ErrorCode(err) == "" {
			err = shared.NewStoreUnavailable(err)
		}
		return nil, err
	}
	return sub, nil
}

// History returns the archived cycles, oldest first
func (s *BillingService) History(ctx context.Context) ([]tanker.BillingCycle, error) {
	cycles, err := s.store.Cycles().History(ctx)
	if err != nil {
		return nil, err
	}
	tanker.SortCycles(cycles)
	return cycles, nil
}

// CycleReport computes the bills of an archived cycle over its (start, end] range
func (s *BillingService) CycleReport(ctx context.Context, cycleID uuid.UUID) (Report, error) {
	cycles, err := s.History(ctx)
	if err != nil {
		return Report{}, err
	}
	for _, c := range cycles {
		if c.ID == cycleID {
			return s.Report(ctx, c.Range())
		}
	}
	return Report{}, shared.NewDomainError(shared.CodeNotFound, "billing cycle "+cycleID.String()+" not found")
}

// CloseCycle closes the open cycle up to today.
//
// Closing twice on the same day returns InvalidState. When another instance
// closed first, ConcurrencyConflict is returned and the boundary is reloaded
// so the next call sees the new cycle.
func (s *BillingService) CloseCycle(ctx context.Context) (cycle tanker.BillingCycle, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "close_cycle")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
		s.metrics.RecordCycleClose(ctx, err)
	}()

	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	current, err := s.Boundary(ctx)
	if err != nil {
		return tanker.BillingCycle{}, err
	}
	cycle, next, err := s.archiver.Close(ctx, current, s.Today())
	if err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			s.mu.Lock()
			if rerr := s.reloadBoundaryLocked(ctx); rerr != nil {
				s.logger.Warn("Failed to reload cycle boundary", zap.Error(rerr))
			}
			s.mu.Unlock()
		}
		return tanker.BillingCycle{}, err
	}

	s.mu.Lock()
	s.setBoundaryLocked(next)
	s.mu.Unlock()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCycleID, cycle.ID.String(),
		telemetry.SpanAttrCycleStart, cycle.StartDate,
		telemetry.SpanAttrCycleEnd, cycle.EndDate,
	)

	if perr := s.publisher.Publish(ctx, tanker.NewCycleClosedEvent(cycle)); perr != nil {
		s.logger.Warn("Failed to publish cycle closed event", zap.Error(perr))
	}
	s.archiveCycle(ctx, cycle)
	return cycle, nil
}

// archiveCycle uploads the closed cycle's report. Failures are only logged:
// the cycle is already closed.
func (s *BillingService) archiveCycle(ctx context.Context, cycle tanker.BillingCycle) {
	if s.archive == nil || s.archiveRenderer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.archiveTimeout)
	defer cancel()

	key := fmt.Sprintf("%s_%s%s", cycle.StartDate, cycle.EndDate, s.archiveRenderer.Extension())
	log := s.logger.With(zap.String("cycle_id", cycle.ID.String()), zap.String("key", key))

	report, err := s.Report(ctx, cycle.Range())
	if err != nil {
		log.Error("Failed to build cycle report for archive", zap.Error(err))
		return
	}
	var buf bytes.Buffer
	if err := s.archiveRenderer.Render(&buf, report); err != nil {
		log.Error("Failed to render cycle report for archive", zap.Error(err))
		return
	}
	if err := s.archive.Put(ctx, key, buf.Bytes(), s.archiveRenderer.ContentType()); err != nil {
		log.Error("Failed to archive cycle report", zap.Error(err))
		return
	}
	telemetry.AddEvent(telemetry.SpanFromContext(ctx), "cycle_report_archived", "key", key, "bytes", buf.Len())
	log.Info("Cycle report archived", zap.Int("bytes", buf.Len()))
}

// Ping checks that the store is reachable
func (s *BillingService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close ends every open-cycle bill subscription
func (s *BillingService) Close() {
	s.boundaries.Close()
}
