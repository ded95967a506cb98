package intcode

import (
	"errors"
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

var (
	// MetricMachineInstructions counts executed instructions, emitted once
	// per machine when it stops.
	MetricMachineInstructions = []string{"intcode", "machine", "instructions", "count"}
	MetricMachineHaltCount    = []string{"intcode", "machine", "halt", "count"}
	MetricMachineFaultCount   = []string{"intcode", "machine", "fault", "count"}
	MetricMachineOutputCount  = []string{"intcode", "machine", "output", "count"}
	MetricNetworkRunCount     = []string{"intcode", "network", "run", "count"}
	MetricNetworkRunErrors    = []string{"intcode", "network", "run", "error", "count"}
	MetricNetworkRunMillis    = []string{"intcode", "network", "run", "duration", "ms"}
	MetricSearchPermutations  = []string{"intcode", "search", "permutation", "count"}
	MetricStreamEstInCount    = []string{"intcode", "stream", "establishment", "in", "count"}
	MetricStreamEstInErrors   = []string{"intcode", "stream", "establishment", "in", "error", "count"}
	MetricStreamEstOutCount   = []string{"intcode", "stream", "establishment", "out", "count"}
	MetricStreamEstOutErrors  = []string{"intcode", "stream", "establishment", "out", "error", "count"}
	MetricStreamValuesIn      = []string{"intcode", "stream", "values", "in", "count"}
	MetricConnEstCount        = []string{"intcode", "connection", "established", "count"}
)

type TelemetryLabel string

var (
	LabelError      TelemetryLabel = "error"
	LabelMachine    TelemetryLabel = "machine"
	LabelRunID      TelemetryLabel = "run_id"
	LabelScheduling TelemetryLabel = "scheduling"
	LabelExport     TelemetryLabel = "export"
	LabelPeerAddr   TelemetryLabel = "peer_addr"
	LabelPeerName   TelemetryLabel = "peer_name"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (lab TelemetryLabel) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}

// errorKind is the low-cardinality label value for a machine failure.
func errorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrInvalidOpcode):
		return "invalid_opcode"
	case errors.Is(err, ErrMemoryFault):
		return "memory_fault"
	case errors.Is(err, ErrInvalidMode):
		return "invalid_mode"
	default:
		return "other"
	}
}

func withLabels(base []metrics.Label, extra ...metrics.Label) []metrics.Label {
	out := make([]metrics.Label, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}
