package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// telemetry is shared by the factory and every Actions it builds.
type telemetry struct {
	prefix  string
	logger  Logger
	metrics MetricsRecorder
}

func (t telemetry) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
		if code := TextCode(err); code != "" {
			fields = cloneFields(fields)
			fields["error_code"] = code
		}
	}

	contextFields := cloneFields(fields)
	contextFields["operation"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = time.Since(startedAt).Milliseconds()
	if err != nil {
		contextFields["error"] = err.Error()
		enrichErrorFields(contextFields, err)
	}

	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range []string{"collection", "namespace", "error_code"} {
		if value := strings.TrimSpace(fmt.Sprint(contextFields[key])); value != "" && value != "<nil>" {
			tags[key] = value
		}
	}

	prefix := t.prefix
	if prefix == "" {
		prefix = "entitygraph"
	}
	t.recordCounter(ctx, prefix+"."+operation+".total", 1, tags)
	t.recordHistogram(ctx, prefix+"."+operation+".duration_ms", float64(time.Since(startedAt).Milliseconds()), tags)

	if err != nil {
		t.logWithLevel(ctx, "error", operation+" failed", contextFields)
		return
	}
	t.logWithLevel(ctx, "info", operation+" succeeded", contextFields)
}

// enrichErrorFields copies the classification and correlation ids of a
// structured error into log fields.
func enrichErrorFields(fields map[string]any, err error) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return
	}
	fields["error_category"] = fmt.Sprint(richErr.Category)
	if richErr.TextCode != "" {
		fields["error_text_code"] = richErr.TextCode
	}
	if richErr.Code != 0 {
		fields["error_status"] = richErr.Code
	}
	for _, key := range []string{"request_id", "trace_id"} {
		if value, ok := richErr.Metadata[key]; ok {
			fields[key] = value
		}
	}
}

func (t telemetry) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if t.logger == nil {
		return
	}
	logger := t.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (t telemetry) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if t.metrics == nil {
		return
	}
	t.metrics.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (t telemetry) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if t.metrics == nil {
		return
	}
	t.metrics.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}
