package recovery

import (
	"context"
	"errors"
	"testing"
)

func TestExecuteWithFallback(t *testing.T) {
	ctx := context.Background()
	fail := func(ctx context.Context) error { return errors.New("primary down") }
	ok := func(ctx context.Context) error { return nil }

	t.Run("primary succeeds, fallback not run", func(t *testing.T) {
		ran := false
		err := ExecuteWithFallback(ctx, nil, ok, func(ctx context.Context) error {
			ran = true
			return nil
		})
		if err != nil {
			t.Fatalf("err = %v, want nil", err)
		}
		if ran {
			t.Error("fallback must not run when primary succeeds")
		}
	})

	t.Run("fallback rescues primary failure", func(t *testing.T) {
		if err := ExecuteWithFallback(ctx, nil, fail, ok); err != nil {
			t.Errorf("err = %v, want nil", err)
		}
	})

	t.Run("both fail returns fallback error", func(t *testing.T) {
		fbErr := errors.New("fallback down too")
		err := ExecuteWithFallback(ctx, nil, fail, func(ctx context.Context) error {
			return fbErr
		})
		if !errors.Is(err, fbErr) {
			t.Errorf("err = %v, want fallback error", err)
		}
	})
}

func batchOps(results ...error) []func(ctx context.Context) (any, error) {
	ops := make([]func(ctx context.Context) (any, error), len(results))
	for i, res := range results {
		res := res
		i := i
		ops[i] = func(ctx context.Context) (any, error) {
			if res != nil {
				return nil, res
			}
			return i, nil
		}
	}
	return ops
}

func TestExecuteBatchWithRecovery_ContinueOnError(t *testing.T) {
	boom := errors.New("boom")
	tally := ExecuteBatchWithRecovery(context.Background(), nil,
		BatchRecoveryConfig{ContinueOnError: true},
		batchOps(nil, boom, nil, boom, nil))

	if tally.Total != 5 || tally.Successful != 3 || tally.Failed != 2 {
		t.Errorf("tally = %+v, want total 5 / ok 3 / failed 2", tally)
	}
	if len(tally.Results) != 5 {
		t.Errorf("results = %d, want 5 (every operation ran)", len(tally.Results))
	}
	if tally.Results[1].Err == nil || tally.Results[0].Err != nil {
		t.Error("per-item results should mirror each operation's outcome")
	}
}

func TestExecuteBatchWithRecovery_StopsPastMaxFailures(t *testing.T) {
	boom := errors.New("boom")
	tally := ExecuteBatchWithRecovery(context.Background(), nil,
		BatchRecoveryConfig{MaxFailures: 1},
		batchOps(boom, boom, nil, nil))

	if tally.Failed != 2 {
		t.Errorf("failed = %d, want 2", tally.Failed)
	}
	if tally.Successful != 0 {
		t.Errorf("successful = %d, want 0 (batch aborted before the successes)", tally.Successful)
	}
	if len(tally.Results) != 2 {
		t.Errorf("results = %d, want 2", len(tally.Results))
	}
}
