package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainWorkflow = "tap/workflow/v1"
	DomainAudit    = "tap/audit/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// WorkflowHash computes the content hash of a workflow document. Two
// documents that decode to the same workflow hash the same regardless of
// key order, formatting or Unicode normalization.
func WorkflowHash(w *Workflow) (string, error) {
	obj, err := w.toObject()
	if err != nil {
		return "", fmt.Errorf("WorkflowHash: %w", err)
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("WorkflowHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainWorkflow, canonical), nil
}

// AuditID computes the content-addressed ID of a recorded audit.
//
// ordinal is the audit's position in the run's recording order. It keeps
// two audits with equal key, value and sources distinct, while staying
// stable across re-runs of a deterministic workflow. value is the audit
// value's stored representation (canonical JSON, or text for values that
// have no JSON form).
func AuditID(runID string, ordinal int64, key, value string, sources []string) (string, error) {
	srcs := make(Array, len(sources))
	for i, s := range sources {
		srcs[i] = String(s)
	}
	obj := Object{
		"run_id":  String(runID),
		"ordinal": Int(ordinal),
		"key":     String(key),
		"value":   String(value),
		"sources": srcs,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("AuditID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainAudit, canonical), nil
}

// toObject renders the workflow as a Value tree for hashing. Node indices
// and names are resolved so that implicit and explicit spellings of the
// same workflow hash the same.
func (w *Workflow) toObject() (Object, error) {
	nodes := make(Array, len(w.Nodes))
	for pos, n := range w.Nodes {
		params := n.Params
		if params == nil {
			params = Object{}
		}
		inputs := n.Inputs
		if inputs == nil {
			inputs = Array{}
		}
		nodes[pos] = Object{
			"index":   Int(n.IndexOf(pos)),
			"name":    String(w.NodeName(pos)),
			"process": String(n.Process),
			"params":  params,
			"inputs":  inputs,
			"batch":   Int(n.Batch),
		}
	}

	joins := make(Array, len(w.Joins))
	for i, j := range w.Joins {
		typ := CanonicalJoinType(j.Type)
		if typ == "" {
			return nil, fmt.Errorf("joins[%d]: unknown join type %q", i, j.Type)
		}
		opts := Object{
			"stack":     Bool(j.Options.Stack),
			"iterate":   Bool(j.Options.Iterate),
			"enq":       Bool(j.Options.Enq),
			"unbatched": Bool(j.Options.Unbatched),
			"limit":     Int(j.Options.Limit),
		}
		if j.Options.Splat != nil {
			opts["splat"] = Bool(*j.Options.Splat)
		}
		obj := Object{
			"name":    String(j.Name),
			"type":    String(typ),
			"inputs":  intArray(j.Inputs),
			"outputs": intArray(j.Outputs),
			"options": opts,
		}
		if j.Select != nil {
			values := j.Select.Values
			if values == nil {
				values = Array{}
			}
			obj["select"] = Object{
				"type":   String(j.Select.Type),
				"field":  String(j.Select.Field),
				"values": values,
			}
		}
		joins[i] = obj
	}

	return Object{
		"name":      String(w.Name),
		"max_steps": Int(w.MaxSteps),
		"nodes":     nodes,
		"joins":     joins,
	}, nil
}

func intArray(xs []int) Array {
	out := make(Array, len(xs))
	for i, x := range xs {
		out[i] = Int(x)
	}
	return out
}
