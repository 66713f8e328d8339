package gpu

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kubeadapt/nvsmi-exporter/internal/errors"
)

// waitDelay bounds how long a killed query may hold its output pipes open.
const waitDelay = time.Second

// QueryResult is the outcome of one GPU query: either Output, or Err with
// one of the errors.Code* codes. A QUERY_FAILED result also carries Output
// when nvidia-smi printed rows before exiting non-zero, which it does for
// the remaining devices when one GPU has fallen off the bus.
type QueryResult struct {
	Output []byte
	Err    *errors.QueryError
}

// OK reports whether the query produced output.
func (r QueryResult) OK() bool { return r.Err == nil }

// Querier abstracts the GPU query invocation for testability.
type Querier interface {
	Query(ctx context.Context) QueryResult
}

// nvidiaSMIQuerier implements Querier by running nvidia-smi.
type nvidiaSMIQuerier struct {
	command string
	timeout time.Duration
}

// NewNvidiaSMIQuerier creates a Querier that runs command with the fixed
// query arguments, killing it after timeout.
func NewNvidiaSMIQuerier(command string, timeout time.Duration) Querier {
	return &nvidiaSMIQuerier{command: command, timeout: timeout}
}

func queryArgs() []string {
	return []string{
		"--query-gpu=" + strings.Join(queryFields, ","),
		"--format=csv,noheader,nounits",
	}
}

func (q *nvidiaSMIQuerier) Query(ctx context.Context) QueryResult {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, q.command, queryArgs()...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	out, err := cmd.Output()
	if err == nil {
		return QueryResult{Output: out}
	}

	res := QueryResult{Err: q.classify(ctx, err, stderr.String())}
	if res.Err.Code == errors.CodeFailed && len(bytes.TrimSpace(out)) > 0 {
		res.Output = out
	}
	return res
}

// classify maps an invocation failure onto a query error code.
func (q *nvidiaSMIQuerier) classify(ctx context.Context, err error, stderr string) *errors.QueryError {
	name := filepath.Base(q.command)
	qe := &errors.QueryError{Err: err}

	var exitErr *exec.ExitError
	switch {
	case stderrors.Is(err, exec.ErrNotFound), stderrors.Is(err, fs.ErrNotExist):
		qe.Code = errors.CodeToolMissing
		qe.Message = name + " not found"
	case stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		qe.Code = errors.CodeTimeout
		qe.Message = name + " timeout"
	case stderrors.As(err, &exitErr):
		qe.Code = errors.CodeFailed
		qe.Message = fmt.Sprintf("%s exited with code %d", name, exitErr.ExitCode())
		if msg := strings.TrimSpace(stderr); msg != "" {
			qe.Message += ": " + msg
		}
	default:
		qe.Code = errors.CodeFailed
		qe.Message = fmt.Sprintf("running %s: %v", name, err)
	}
	return qe
}
