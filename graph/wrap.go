package graph

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// structValidator is a single shared instance per the library's own
// recommendation (it caches struct metadata internally; constructing one per
// call is the documented anti-pattern).
var structValidator = validator.New()

// NodeValidator declares the optional input/output validation a node can
// require before/after its body runs. Either schema may be nil. StructTags
// additionally runs go-playground/validator's `validate:"..."` struct-tag
// checks against the state value when true (S must be a struct or a pointer
// to one; ignored otherwise).
type NodeValidator struct {
	InputSchema  *jsonschema.Schema
	OutputSchema *jsonschema.Schema
	StructTags   bool
}

func (v *NodeValidator) validate(schema *jsonschema.Schema, value any, structTags bool, nodeID string) error {
	if schema != nil {
		data, err := json.Marshal(value)
		if err != nil {
			return &ValidationError{Code: "SCHEMA_MARSHAL", Message: err.Error(), NodeID: nodeID}
		}
		var decoded any
		if err := json.Unmarshal(data, &decoded); err != nil {
			return &ValidationError{Code: "SCHEMA_MARSHAL", Message: err.Error(), NodeID: nodeID}
		}
		if err := schema.Validate(decoded); err != nil {
			return &ValidationError{Code: "SCHEMA_VIOLATION", Message: err.Error(), NodeID: nodeID}
		}
	}
	if structTags {
		if err := structValidator.Struct(value); err != nil {
			if _, ok := err.(*validator.InvalidValidationError); !ok {
				return &ValidationError{Code: "STRUCT_TAG_VIOLATION", Message: err.Error(), NodeID: nodeID}
			}
		}
	}
	return nil
}

// Wrap assembles the node decorator chain: input validation, rate limiting,
// timeout, retry with exponential backoff, output validation, then the node
// body itself. Generalizes the teacher's direct executeNodeWithTimeout call
// (scattered inline through runConcurrent/Run) into a reusable, composable
// Node[S] that any caller can build once and register with Add like a plain
// node.
func Wrap[S any](nodeID string, node Node[S], policy *NodePolicy, defaultTimeout time.Duration, v *NodeValidator) Node[S] {
	return NodeFunc[S](func(ctx context.Context, state S) NodeResult[S] {
		if v != nil {
			if err := v.validate(v.InputSchema, state, v.StructTags, nodeID); err != nil {
				return NodeResult[S]{Err: err}
			}
		}

		if policy != nil && policy.RateLimit != nil {
			if err := policy.RateLimit.Wait(ctx); err != nil {
				return NodeResult[S]{Err: err}
			}
		}

		attempts := 1
		var retry *RetryPolicy
		if policy != nil && policy.RetryPolicy != nil {
			retry = policy.RetryPolicy
			attempts = retry.MaxAttempts
			if attempts < 1 {
				attempts = 1
			}
		}

		rng, _ := ctx.Value(RNGKey).(*rand.Rand)

		var result NodeResult[S]
		var lastErr error
		for attempt := 0; attempt < attempts; attempt++ {
			var timeoutErr error
			result, timeoutErr = executeNodeWithTimeout(ctx, node, nodeID, state, policy, defaultTimeout)

			err := result.Err
			if err == nil {
				err = timeoutErr
			}
			if err == nil {
				if v != nil {
					if verr := v.validate(v.OutputSchema, result.Delta, false, nodeID); verr != nil {
						return NodeResult[S]{Err: verr}
					}
				}
				return result
			}

			lastErr = err
			if retry == nil || !isRetriable(err, retry) || attempt == attempts-1 {
				result.Err = err
				return result
			}

			delay := computeBackoff(attempt, retry.BaseDelay, retry.MaxDelay, rng)
			select {
			case <-ctx.Done():
				return NodeResult[S]{Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		result.Err = lastErr
		return result
	})
}

// isRetriable classifies err as retriable per policy.Retryable if set, else
// falls back to NodeError.Retriable when err is a *NodeError.
func isRetriable(err error, policy *RetryPolicy) bool {
	if policy.Retryable != nil {
		return policy.Retryable(err)
	}
	if nerr, ok := err.(*NodeError); ok {
		return nerr.Retriable
	}
	return false
}
