package guide

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scopeName = "github.com/teslashibe/go-wayfinder/pkg/guide"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
)

type instruments struct {
	spoken     metric.Int64Counter
	suppressed metric.Int64Counter
	dropped    metric.Int64Counter
	utterances metric.Int64Counter
}

func newInstruments() instruments {
	fallback := noop.NewMeterProvider().Meter(scopeName)
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}
	return instruments{
		spoken:     counter("guide.phrases.spoken", "Phrases handed to the speaker"),
		suppressed: counter("guide.phrases.suppressed", "Phrases rejected by the speech arbiter"),
		dropped:    counter("guide.frames.dropped", "Frames dropped before analysis"),
		utterances: counter("guide.utterances", "Final utterances handled by the dialogue"),
	}
}
