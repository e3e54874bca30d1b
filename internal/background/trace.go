package background

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/agentcore/nexuscore/internal/store"
	"github.com/agentcore/nexuscore/pkg/models"
)

const tableTraces = "background_traces"

func (r *Runtime) traceTable() *store.Table[models.ToolTrace] {
	return store.NewTable[models.ToolTrace](r.st, tableTraces)
}

// RecordTrace persists a structured record of one tool invocation made
// during a background agent run.
func (r *Runtime) RecordTrace(ctx context.Context, agentID string, trace models.ToolTrace) error {
	seq := r.nextSeq(agentID)
	if err := r.traceTable().Put(ctx, seqKey(agentID, seq), trace); err != nil {
		return fmt.Errorf("background: record trace %s: %w", agentID, err)
	}
	return nil
}

// Traces returns every recorded tool-call trace for agentID, in
// recording order.
func (r *Runtime) Traces(ctx context.Context, agentID string) ([]models.ToolTrace, error) {
	entries, err := r.traceTable().ScanPrefix(ctx, agentID+"/", 0)
	if err != nil {
		return nil, fmt.Errorf("background: traces %s: %w", agentID, err)
	}
	out := make([]models.ToolTrace, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Value)
	}
	return out, nil
}

// ReadTraceOutput tails the file referenced by trace.OutputRef, up to
// maxLines lines, returning the most recent output produced by that
// tool call. Returns an empty string if no output file was recorded.
func ReadTraceOutput(trace models.ToolTrace, maxLines int) (string, error) {
	if trace.OutputRef == "" {
		return "", nil
	}
	f, err := os.Open(trace.OutputRef)
	if err != nil {
		return "", fmt.Errorf("background: open trace output %s: %w", trace.OutputRef, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if maxLines > 0 && len(lines) > maxLines {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("background: read trace output %s: %w", trace.OutputRef, err)
	}

	out := ""
	for i, line := range lines {
		if i > 0 {
			out += "\n"
		}
		out += line
	}
	return out, nil
}
