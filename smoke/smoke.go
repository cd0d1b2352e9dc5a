// Package smoke hits the bounded routes of a running canary, the way a
// deployment pipeline would right after a rollout.
package smoke

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrChecksFailed = errors.New("smoke checks failed")

// DefaultPaths never includes the fault routes; /stress-test is opt-in.
var DefaultPaths = []string{"/", "/users", "/health", "/clouds", "/stars", "/infinite-flight"}

type Result struct {
	Path    string
	Status  int
	Bytes   int64
	Elapsed time.Duration
	Err     error
}

func (r Result) OK() bool {
	return r.Err == nil && r.Status == http.StatusOK
}

type Checker struct {
	BaseURL string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewChecker(baseURL string, timeout time.Duration, logger *slog.Logger) *Checker {
	return &Checker{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
		Logger:  logger,
	}
}

// Run checks every path in order and returns all results. The error is
// ErrChecksFailed, wrapped with a count, if any path did not return 200.
func (c *Checker) Run(ctx context.Context, paths []string) ([]Result, error) {
	results := make([]Result, 0, len(paths))
	failed := 0
	for _, p := range paths {
		res := c.check(ctx, p)
		results = append(results, res)
		if res.OK() {
			c.Logger.Info("check passed", "path", p, "status", res.Status, "bytes", res.Bytes, "elapsed", res.Elapsed)
			continue
		}
		failed++
		c.Logger.Error("check failed", "path", p, "status", res.Status, "err", res.Err)
	}

	if failed > 0 {
		return results, errors.Wrapf(ErrChecksFailed, "%d of %d", failed, len(paths))
	}
	return results, nil
}

func (c *Checker) check(ctx context.Context, path string) Result {
	res := Result{Path: path}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		res.Err = errors.WithStack(err)
		return res
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		res.Err = errors.Wrapf(err, "get %s", path)
		return res
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode
	res.Bytes, err = io.Copy(io.Discard, resp.Body)
	if err != nil {
		res.Err = errors.Wrapf(err, "read %s", path)
	}
	res.Elapsed = time.Since(start)
	return res
}
