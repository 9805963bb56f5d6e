package trace

import (
	"crypto/sha256"
	"fmt"
)

const defaultRepeatThreshold = 3

// callKey is a fingerprint of an action-group call.
type callKey struct {
	function   string
	paramsHash string
}

// repeatWatch counts identical action-group invocations within one
// response. An agent calling the same function with the same arguments
// over and over is usually stuck.
type repeatWatch struct {
	counts    map[callKey]int
	threshold int
}

// newRepeatWatch returns a watch that fires at threshold identical calls.
// A threshold < 0 disables it; 0 uses the default (3).
func newRepeatWatch(threshold int) *repeatWatch {
	if threshold == 0 {
		threshold = defaultRepeatThreshold
	}
	return &repeatWatch{counts: make(map[callKey]int), threshold: threshold}
}

// record notes a call and returns a warning the first time the call
// reaches the threshold.
func (w *repeatWatch) record(call ActionGroupInvocation) (string, bool) {
	if w.threshold < 0 {
		return "", false
	}
	key := callKey{function: call.ActionGroup + "/" + call.Function, paramsHash: hashParameters(call.Parameters)}
	w.counts[key]++
	if w.counts[key] != w.threshold {
		return "", false
	}
	return fmt.Sprintf("agent called %s %d times with identical parameters", call.Function, w.threshold), true
}

// hashParameters fingerprints parameters in order. Fields are quoted so
// values holding separators cannot collide with other parameter lists.
func hashParameters(params []Parameter) string {
	h := sha256.New()
	for _, p := range params {
		fmt.Fprintf(h, "%q:%q=%q\n", p.Name, p.Type, p.Value)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
