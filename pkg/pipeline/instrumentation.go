package pipeline

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Instrumentation holds the OTEL counters for the processor
type Instrumentation struct {
	Meter metric.Meter

	RecordsDecoded    metric.Int64Counter
	DecodeFailures    metric.Int64Counter
	LateRecords       metric.Int64Counter
	WindowsClosed     metric.Int64Counter
	AlertsEmitted     metric.Int64Counter
	AlertsFiltered    metric.Int64Counter
	SinkWriteRetries  metric.Int64Counter
	AlertsUndelivered metric.Int64Counter
}

// NewInstrumentation creates the processor meter and counters
func NewInstrumentation() (*Instrumentation, error) {
	meter := otel.Meter("opspulse-processor")

	recordsDecoded, err := meter.Int64Counter("records_decoded",
		metric.WithDescription("Number of log records successfully decoded"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	decodeFailures, err := meter.Int64Counter("decode_failures",
		metric.WithDescription("Number of inbound payloads dropped as undecodable"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	lateRecords, err := meter.Int64Counter("late_records_dropped",
		metric.WithDescription("Number of records dropped for arriving behind the watermark"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	windowsClosed, err := meter.Int64Counter("windows_closed",
		metric.WithDescription("Number of tumbling windows closed"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	alertsEmitted, err := meter.Int64Counter("alerts_emitted",
		metric.WithDescription("Number of actionable alerts handed to the sink"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	alertsFiltered, err := meter.Int64Counter("alerts_filtered",
		metric.WithDescription("Number of non-actionable window results discarded"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	sinkWriteRetries, err := meter.Int64Counter("sink_write_retries",
		metric.WithDescription("Number of retried outbound writes"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	alertsUndelivered, err := meter.Int64Counter("alerts_undelivered",
		metric.WithDescription("Number of alerts abandoned after exhausting retries"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	return &Instrumentation{
		Meter:             meter,
		RecordsDecoded:    recordsDecoded,
		DecodeFailures:    decodeFailures,
		LateRecords:       lateRecords,
		WindowsClosed:     windowsClosed,
		AlertsEmitted:     alertsEmitted,
		AlertsFiltered:    alertsFiltered,
		SinkWriteRetries:  sinkWriteRetries,
		AlertsUndelivered: alertsUndelivered,
	}, nil
}
