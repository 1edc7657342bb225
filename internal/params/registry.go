package params

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"task-tracker-api/internal/metrics"
	"task-tracker-api/internal/models"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

type snapshot struct {
	values   map[string]Value
	loadedAt time.Time
	seq      uint64
}

// Registry serves parameter values from an in-memory snapshot of the
// system_parameters table. Readers always see one whole snapshot.
type Registry struct {
	db       *gorm.DB
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
	defaults map[string]Value

	snap   atomic.Pointer[snapshot]
	seq    atomic.Uint64
	flight singleflight.Group
}

type RegistryOptions struct {
	TTL      time.Duration
	Now      func() time.Time
	Logger   *slog.Logger
	Defaults []Default
}

func NewRegistry(db *gorm.DB, opts RegistryOptions) *Registry {
	r := &Registry{
		db:     db,
		ttl:    opts.TTL,
		now:    opts.Now,
		logger: opts.Logger,
	}
	if r.ttl <= 0 {
		r.ttl = 30 * time.Second
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	defs := opts.Defaults
	if defs == nil {
		defs = Defaults
	}
	r.defaults = defaultValues(defs)
	return r
}

// Get resolves key from the snapshot, then the compiled-in defaults.
func (r *Registry) Get(ctx context.Context, key string) (Value, bool) {
	if s := r.snapshotFor(ctx); s != nil {
		if v, ok := s.values[key]; ok {
			return v, true
		}
	}
	v, ok := r.defaults[key]
	return v, ok
}

type pinKey struct{}

type pinned struct {
	registry *Registry
	snap     *snapshot
}

// Pin resolves the current snapshot of r once and binds it to the returned
// context. Reads through that context never hit the database, so they are
// safe inside a transaction that holds the only connection. Readers that are
// not a *Registry are left alone.
func Pin(ctx context.Context, r Reader) context.Context {
	reg, ok := r.(*Registry)
	if !ok || reg == nil {
		return ctx
	}
	if p, ok := ctx.Value(pinKey{}).(pinned); ok && p.registry == reg {
		return ctx
	}
	return context.WithValue(ctx, pinKey{}, pinned{registry: reg, snap: reg.current(ctx)})
}

func (r *Registry) snapshotFor(ctx context.Context) *snapshot {
	if p, ok := ctx.Value(pinKey{}).(pinned); ok && p.registry == r {
		return p.snap
	}
	return r.current(ctx)
}

func (r *Registry) current(ctx context.Context) *snapshot {
	s := r.snap.Load()
	if s != nil && r.now().Sub(s.loadedAt) < r.ttl {
		return s
	}
	// Stale readers share one reload. The reload must outlive any single caller.
	res, err, _ := r.flight.Do("reload", func() (interface{}, error) {
		return r.reload(context.WithoutCancel(ctx), "ttl")
	})
	if err != nil {
		r.logger.Warn("parameter reload failed, serving previous values", "error", err)
		return s
	}
	return res.(*snapshot)
}

// ForceRefresh reloads immediately, ignoring the TTL.
func (r *Registry) ForceRefresh(ctx context.Context) error {
	_, err := r.reload(ctx, "force")
	return err
}

func (r *Registry) reload(ctx context.Context, trigger string) (*snapshot, error) {
	seq := r.seq.Add(1)

	var rows []models.SystemParameter
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("params: load: %w", err)
	}

	values := make(map[string]Value, len(rows))
	for _, row := range rows {
		v, err := Parse(row.ValueType, row.Value)
		if err != nil {
			metrics.ParamInvalidRows.Inc()
			r.logger.Warn("skipping invalid parameter", "key", row.Key, "error", err)
			continue
		}
		values[row.Key] = v
	}

	next := &snapshot{values: values, loadedAt: r.now(), seq: seq}
	metrics.ParamReloads.WithLabelValues(trigger).Inc()
	return r.swap(next), nil
}

// swap installs next unless a reload that started later already landed.
func (r *Registry) swap(next *snapshot) *snapshot {
	for {
		cur := r.snap.Load()
		if cur != nil && cur.seq > next.seq {
			return cur
		}
		if r.snap.CompareAndSwap(cur, next) {
			return next
		}
	}
}

func (r *Registry) Int(ctx context.Context, key string, def int) int {
	if v, ok := r.Get(ctx, key); ok {
		if n, ok := v.Int(); ok {
			return int(n)
		}
	}
	return def
}

func (r *Registry) Float(ctx context.Context, key string, def float64) float64 {
	if v, ok := r.Get(ctx, key); ok {
		if f, ok := v.Float(); ok {
			return f
		}
	}
	return def
}

func (r *Registry) Bool(ctx context.Context, key string, def bool) bool {
	if v, ok := r.Get(ctx, key); ok {
		if b, ok := v.Bool(); ok {
			return b
		}
	}
	return def
}

func (r *Registry) String(ctx context.Context, key, def string) string {
	if v, ok := r.Get(ctx, key); ok {
		return v.String()
	}
	return def
}

func (r *Registry) Strings(ctx context.Context, key string, def []string) []string {
	if v, ok := r.Get(ctx, key); ok {
		if ss, ok := v.Strings(); ok {
			return ss
		}
	}
	return def
}

// Reader is the read side of the registry, for services that only consume values.
type Reader interface {
	Int(ctx context.Context, key string, def int) int
	Float(ctx context.Context, key string, def float64) float64
	Bool(ctx context.Context, key string, def bool) bool
	String(ctx context.Context, key, def string) string
	Strings(ctx context.Context, key string, def []string) []string
}

var _ Reader = (*Registry)(nil)
