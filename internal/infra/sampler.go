package infra

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/eliteGoblin/screentimed/internal/domain"
)

// DefaultSampleInterval is how often the sampler attributes usage.
const DefaultSampleInterval = 30 * time.Second

// usageRetention is how long usage buckets are kept before pruning.
// The report only ever looks at "today"; two days covers clock skew around
// midnight.
const usageRetention = 48 * time.Hour

// minActiveCPU is the minimum CPU-time delta, as a fraction of the sampling
// interval, for a process to count as actively used during that interval.
const minActiveCPU = 0.01

// BucketWriter is the slice of the encrypted store the sampler writes to.
type BucketWriter interface {
	AddUsage(appID string, bucketStart time.Time, duration time.Duration) error
	PruneUsageBefore(cutoff time.Time) (int64, error)
}

// UsageSampler attributes wall-clock usage to applications by watching
// per-process CPU-time deltas between ticks. A process that burned more than
// minActiveCPU of the interval gets the whole interval credited; this
// approximates foreground time well enough for a daily report without any
// platform-specific window tracking.
type UsageSampler struct {
	store    BucketWriter
	interval time.Duration
	logger   *zap.Logger

	// cpuSeconds holds the last observed cumulative CPU seconds per PID.
	cpuSeconds map[int32]float64
	lastPrune  time.Time
}

// NewUsageSampler creates a sampler writing into the given bucket store.
func NewUsageSampler(store BucketWriter, interval time.Duration, logger *zap.Logger) *UsageSampler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &UsageSampler{
		store:      store,
		interval:   interval,
		logger:     logger,
		cpuSeconds: make(map[int32]float64),
	}
}

// Run samples until the context is canceled. The first tick only primes the
// per-PID CPU baselines; credit starts from the second tick.
func (s *UsageSampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("usage sampler started", zap.Duration("interval", s.interval))
	s.sampleOnce(time.Now())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("usage sampler stopping")
			return ctx.Err()
		case now := <-ticker.C:
			s.sampleOnce(now)
		}
	}
}

// sampleOnce takes one sample and credits active processes.
func (s *UsageSampler) sampleOnce(now time.Time) {
	procs, err := process.Processes()
	if err != nil {
		s.logger.Warn("failed to enumerate processes", zap.Error(err))
		return
	}

	seen := make(map[int32]float64, len(procs))
	bucket := now.Truncate(time.Minute)
	credited := 0

	for _, p := range procs {
		name, err := p.Name()
		if err != nil || name == "" {
			continue // process may have exited
		}

		times, err := p.Times()
		if err != nil {
			continue
		}
		total := times.User + times.System
		seen[p.Pid] = total

		prev, known := s.cpuSeconds[p.Pid]
		if !known {
			continue // baseline tick for this PID
		}

		if total-prev < s.interval.Seconds()*minActiveCPU {
			continue // idle during this interval
		}

		appID := normalizeAppID(name)
		if appID == "" {
			continue
		}

		if err := s.store.AddUsage(appID, bucket, s.interval); err != nil {
			s.logger.Warn("failed to record usage",
				zap.String("app", appID),
				zap.Error(err))
			continue
		}
		credited++
	}

	s.cpuSeconds = seen
	s.logger.Debug("usage sample taken",
		zap.Int("processes", len(procs)),
		zap.Int("credited", credited))

	s.maybePrune(now)
}

// maybePrune drops buckets past retention, at most once per hour.
func (s *UsageSampler) maybePrune(now time.Time) {
	if now.Sub(s.lastPrune) < time.Hour {
		return
	}
	s.lastPrune = now

	dropped, err := s.store.PruneUsageBefore(now.Add(-usageRetention))
	if err != nil {
		s.logger.Warn("failed to prune usage buckets", zap.Error(err))
		return
	}
	if dropped > 0 {
		s.logger.Debug("pruned usage buckets", zap.Int64("rows", dropped))
	}
}

// normalizeAppID turns a process name into a stable application identifier:
// lowercase, stripped of a trailing executable extension.
func normalizeAppID(name string) string {
	id := strings.ToLower(strings.TrimSpace(name))
	id = strings.TrimSuffix(id, ".exe")
	return id
}

// BucketReader is the slice of the encrypted store the usage source reads.
type BucketReader interface {
	UsageBetween(from, to time.Time) ([]domain.UsageRecord, error)
}

// SamplingUsageSource implements domain.UsageSource on top of the sampler's
// bucket storage.
type SamplingUsageSource struct {
	store BucketReader
}

// NewSamplingUsageSource creates a usage source reading sampled buckets.
func NewSamplingUsageSource(store BucketReader) *SamplingUsageSource {
	return &SamplingUsageSource{store: store}
}

// GetUsage returns raw bucket records overlapping [from, to).
func (u *SamplingUsageSource) GetUsage(_ context.Context, from, to time.Time) ([]domain.UsageRecord, error) {
	return u.store.UsageBetween(from, to)
}

// HasAccess probes whether process enumeration works at all. On a hardened
// system (hidepid, sandbox) this can fail, which the job treats as a
// permission problem.
func (u *SamplingUsageSource) HasAccess() bool {
	procs, err := process.Processes()
	if err != nil {
		return false
	}
	// We can always at least see ourselves.
	self := int32(os.Getpid())
	for _, p := range procs {
		if p.Pid == self {
			return true
		}
	}
	return len(procs) > 0
}

// Ensure SamplingUsageSource implements domain.UsageSource.
var _ domain.UsageSource = (*SamplingUsageSource)(nil)
