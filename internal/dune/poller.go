package dune

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/web3-frozen/ousd-analytics/internal/metrics"
)

const (
	DefaultPollInterval = 5 * time.Second
	cancelTimeout       = 10 * time.Second
)

// JobClient is the subset of Client the Poller drives.
type JobClient interface {
	Execute(ctx context.Context, queryID int64, params []Parameter) (*Execution, error)
	GetStatus(ctx context.Context, executionID string) (*Status, error)
	GetResult(ctx context.Context, executionID string) (*Result, error)
	CancelExecution(ctx context.Context, executionID string) (bool, error)
}

// ExecutionRecord is one observed state of an execution.
type ExecutionRecord struct {
	QueryID     int64
	ExecutionID string
	State       State
	SubmittedAt time.Time
	FinishedAt  *time.Time
	RowCount    int
	Error       string
}

// Recorder persists execution history.
type Recorder interface {
	RecordExecution(ctx context.Context, rec ExecutionRecord) error
}

// Poller drives an execution from submission to a terminal state.
type Poller struct {
	client   JobClient
	logger   *slog.Logger
	interval time.Duration
	maxWait  time.Duration
	recorder Recorder
	sleep    func(ctx context.Context, d time.Duration) error
}

type Option func(*Poller)

// WithInterval sets the fixed delay between status checks.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxWait bounds a single Refresh. Zero leaves only the caller's context.
func WithMaxWait(d time.Duration) Option {
	return func(p *Poller) { p.maxWait = d }
}

// WithRecorder stores every observed state change.
func WithRecorder(r Recorder) Option {
	return func(p *Poller) { p.recorder = r }
}

func NewPoller(client JobClient, logger *slog.Logger, opts ...Option) *Poller {
	p := &Poller{
		client:   client,
		logger:   logger,
		interval: DefaultPollInterval,
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Interval returns the delay between status checks.
func (p *Poller) Interval() time.Duration { return p.interval }

// Refresh executes queryID and blocks until the execution is terminal.
// COMPLETED returns the result set; FAILED or CANCELLED returns a
// *RefreshError without fetching results. If ctx ends or a status check
// fails first, the execution is cancelled remotely on a best-effort basis
// and the cause is returned.
func (p *Poller) Refresh(ctx context.Context, queryID int64, params []Parameter) (*Result, error) {
	if p.maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.maxWait)
		defer cancel()
	}

	qid := strconv.FormatInt(queryID, 10)
	start := time.Now()

	exec, err := p.client.Execute(ctx, queryID, params)
	if err != nil {
		return nil, err
	}
	id := exec.ExecutionID
	p.logger.Info("execution submitted", "query_id", queryID, "execution_id", id)

	rec := ExecutionRecord{QueryID: queryID, ExecutionID: id, State: StatePending, SubmittedAt: start}
	if exec.State != "" {
		rec.State = exec.State
	}
	p.record(ctx, rec)

	state := rec.State
	for {
		status, err := p.client.GetStatus(ctx, id)
		metrics.ExecutionPolls.WithLabelValues(qid).Inc()
		if err != nil {
			return nil, p.abandon(ctx, id, err)
		}
		if status.State != state {
			p.logger.Debug("execution state changed", "execution_id", id, "from", state, "to", status.State)
			rec.State = status.State
			p.record(ctx, rec)
		}
		state = status.State
		if state.Terminal() {
			break
		}
		if err := p.sleep(ctx, p.interval); err != nil {
			return nil, p.abandon(ctx, id, err)
		}
	}

	metrics.ExecutionsTotal.WithLabelValues(qid, string(state)).Inc()
	finished := time.Now()
	rec.State = state
	rec.FinishedAt = &finished

	if state != StateCompleted {
		rerr := &RefreshError{QueryID: queryID, ExecutionID: id, State: state}
		rec.Error = rerr.Error()
		p.record(ctx, rec)
		return nil, rerr
	}

	res, err := p.client.GetResult(ctx, id)
	if err != nil {
		rec.Error = err.Error()
		p.record(ctx, rec)
		return nil, err
	}
	rec.RowCount = len(res.Rows)
	p.record(ctx, rec)

	metrics.ExecutionDuration.WithLabelValues(qid).Observe(time.Since(start).Seconds())
	p.logger.Info("execution completed",
		"query_id", queryID,
		"execution_id", id,
		"rows", len(res.Rows),
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
	return res, nil
}

// abandon cancels id remotely on a best-effort basis so a lost execution
// does not keep running next to the one the next refresh submits, then
// returns err wrapped.
func (p *Poller) abandon(ctx context.Context, id string, err error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	ok, cerr := p.client.CancelExecution(cctx, id)
	if cerr != nil {
		p.logger.Warn("cancel abandoned execution failed", "execution_id", id, "error", cerr)
	} else {
		p.logger.Info("abandoned execution cancelled", "execution_id", id, "accepted", ok)
	}
	return fmt.Errorf("wait for execution %s: %w", id, err)
}

func (p *Poller) record(ctx context.Context, rec ExecutionRecord) {
	if p.recorder == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.recorder.RecordExecution(rctx, rec); err != nil {
		p.logger.Warn("record execution failed", "execution_id", rec.ExecutionID, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
