package queue

import (
	"testing"

	"github.com/hibiken/asynq"
)

func TestPolicyOptions(t *testing.T) {
	opts := DefaultPolicy.options("analysis", "job-1")
	seen := map[asynq.OptionType]string{}
	for _, opt := range opts {
		seen[opt.Type()] = opt.String()
	}
	for _, want := range []asynq.OptionType{asynq.QueueOpt, asynq.TaskIDOpt, asynq.MaxRetryOpt, asynq.TimeoutOpt, asynq.RetentionOpt} {
		if _, ok := seen[want]; !ok {
			t.Fatalf("missing option type %v in %v", want, seen)
		}
	}
	if seen[asynq.TaskIDOpt] != `TaskID("job-1")` {
		t.Fatalf("unexpected task id option %q", seen[asynq.TaskIDOpt])
	}
}

func TestPolicyOptionsSkipsUnset(t *testing.T) {
	opts := Policy{MaxRetry: -1}.options("analysis", "job-1")
	if len(opts) != 2 {
		t.Fatalf("expected only queue and task id options, got %d", len(opts))
	}
}
