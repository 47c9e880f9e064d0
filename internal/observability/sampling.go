package observability

import (
	"fmt"
	"strconv"
	"strings"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// fixedSamplers are the OTEL_TRACES_SAMPLER values that take no argument.
var fixedSamplers = map[string]func() sdktrace.Sampler{
	"always_on":              sdktrace.AlwaysSample,
	"always_off":             sdktrace.NeverSample,
	"parentbased_always_on":  func() sdktrace.Sampler { return sdktrace.ParentBased(sdktrace.AlwaysSample()) },
	"parentbased_always_off": func() sdktrace.Sampler { return sdktrace.ParentBased(sdktrace.NeverSample()) },
}

// newSampler builds a sampler from the standard OTEL_TRACES_SAMPLER name and argument.
// An empty name is parentbased_always_on, the SDK default. Ratio samplers need an arg in [0, 1];
// an empty arg samples everything. Unknown names and bad ratios are errors so a typo does not
// silently change how much is traced.
func newSampler(name, arg string) (sdktrace.Sampler, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "parentbased_always_on"
	}

	if build, ok := fixedSamplers[name]; ok {
		return build(), nil
	}

	switch name {
	case "traceidratio", "parentbased_traceidratio":
		ratio, err := parseTraceIDRatio(arg)
		if err != nil {
			return nil, err
		}

		sampler := sdktrace.TraceIDRatioBased(ratio)
		if name == "parentbased_traceidratio" {
			sampler = sdktrace.ParentBased(sampler)
		}

		return sampler, nil
	default:
		return nil, fmt.Errorf("unknown traces sampler %q", name)
	}
}

func parseTraceIDRatio(arg string) (float64, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 1, nil
	}

	ratio, err := strconv.ParseFloat(arg, 64)
	if err != nil || ratio < 0 || ratio > 1 {
		return 0, fmt.Errorf("traces sampler arg %q must be a ratio between 0 and 1", arg)
	}

	return ratio, nil
}
