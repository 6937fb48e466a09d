// Package health probes server URLs for reachability.
//
// Targets are checked in fixed-size batches: every probe of a batch runs
// concurrently and the next batch starts only once the current one has
// completed. Peak outbound concurrency is therefore the batch size.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/voyagen/tvdeck/internal/models"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultTimeout   = 10 * time.Second
	DefaultBatchSize = 20
)

// Outcome is the classification of a single URL.
type Outcome struct {
	Status     string
	StatusCode *int
	Error      string
}

// ProbeFunc classifies one URL. It must honour ctx and never panic.
type ProbeFunc func(ctx context.Context, url string) Outcome

// Recorder receives one observation per classified target.
type Recorder interface {
	ObserveProbe(status string, d time.Duration)
}

// Options configures a Checker.
type Options struct {
	Timeout   time.Duration // per request; HEAD and GET each get their own
	BatchSize int
	Client    *http.Client
	Probe     ProbeFunc // overrides CheckURL, mainly for tests
	Recorder  Recorder
	Logger    *logrus.Entry
}

// Checker runs health checks.
type Checker struct {
	timeout   time.Duration
	batchSize int
	client    *http.Client
	probe     ProbeFunc
	recorder  Recorder
	log       *logrus.Entry
	now       func() time.Time
}

// Report is the outcome of CheckAll.
type Report struct {
	Results []models.HealthCheckResult
	Stats   models.HealthStats
}

// New creates a Checker. Zero-valued options fall back to the defaults.
func New(opts Options) *Checker {
	c := &Checker{
		timeout:   opts.Timeout,
		batchSize: opts.BatchSize,
		client:    opts.Client,
		recorder:  opts.Recorder,
		log:       opts.Logger,
		now:       time.Now,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.batchSize <= 0 {
		c.batchSize = DefaultBatchSize
	}
	if c.client == nil {
		c.client = &http.Client{}
	}
	if c.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		c.log = logrus.NewEntry(l)
	}
	c.probe = opts.Probe
	if c.probe == nil {
		c.probe = c.CheckURL
	}
	return c
}

// CheckAll probes every target and returns exactly one result per target.
// Results keep input order. Per-target failures are reported in the
// results; CheckAll itself never fails.
func (c *Checker) CheckAll(ctx context.Context, targets []models.CheckTarget) Report {
	results := make([]models.HealthCheckResult, len(targets))

	for start := 0; start < len(targets); start += c.batchSize {
		end := min(start+c.batchSize, len(targets))

		g := new(errgroup.Group)
		g.SetLimit(c.batchSize)
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = c.check(ctx, targets[i])
				return nil
			})
		}
		// Probe failures live in the results; the group never errors.
		g.Wait()

		c.log.WithFields(logrus.Fields{
			"batch_start": start,
			"batch_size":  end - start,
			"total":       len(targets),
		}).Debug("health batch complete")
	}

	return Report{Results: results, Stats: Summarize(results)}
}

func (c *Checker) check(ctx context.Context, t models.CheckTarget) models.HealthCheckResult {
	started := c.now()
	out := c.probe(ctx, t.URL)
	finished := c.now()

	if c.recorder != nil {
		c.recorder.ObserveProbe(out.Status, finished.Sub(started))
	}
	if out.Status == models.StatusBroken {
		c.log.WithFields(logrus.Fields{
			"stream_id": t.StreamID,
			"server_id": t.ServerID,
			"url":       t.URL,
			"code":      out.StatusCode,
			"error":     out.Error,
		}).Debug("server broken")
	}

	return models.HealthCheckResult{
		StreamID:    t.StreamID,
		StreamTitle: t.StreamTitle,
		ServerID:    t.ServerID,
		ServerName:  t.ServerName,
		Status:      out.Status,
		StatusCode:  out.StatusCode,
		Error:       out.Error,
		CheckTime:   finished.UTC().Format(models.TimeLayout),
	}
}

// CheckURL classifies url with a HEAD request. Only a transport failure
// (no HTTP response at all) falls back to a single GET; a clean non-ok
// answer to HEAD is final. When both requests fail at the transport
// level, the HEAD error is the one reported.
func (c *Checker) CheckURL(ctx context.Context, url string) Outcome {
	code, headErr := c.request(ctx, http.MethodHead, url)
	if headErr == nil {
		return classify(code)
	}

	code, getErr := c.request(ctx, http.MethodGet, url)
	if getErr == nil {
		return classify(code)
	}
	return Outcome{Status: models.StatusBroken, Error: headErr.Error()}
}

// request performs one bounded request and returns the status code.
// The body is never read: a live stream would not end.
func (c *Checker) request(ctx context.Context, method, url string) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func classify(code int) Outcome {
	status := models.StatusBroken
	if isOK(code) {
		status = models.StatusWorking
	}
	return Outcome{Status: status, StatusCode: &code}
}

func isOK(code int) bool {
	return code >= 200 && code < 400
}
