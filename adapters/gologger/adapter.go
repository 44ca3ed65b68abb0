package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// RootName is the logger name the actions factory logs under.
const RootName = "entitygraph"

// ComponentName returns the dotted logger name for component, e.g.
// entitygraph.worker. An empty component yields RootName.
func ComponentName(component string) string {
	component = strings.Trim(strings.TrimSpace(component), ".")
	if component == "" || component == RootName {
		return RootName
	}
	if strings.HasPrefix(component, RootName+".") {
		return component
	}
	return RootName + "." + component
}

// Resolve returns the provider and the logger for component. A provider wins
// over a logger; with neither a nop logger is returned.
func Resolve(component string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	name := ComponentName(component)
	resolvedProvider, resolvedLogger := glog.Resolve(name, provider, logger)
	if provider != nil {
		if named := provider.GetLogger(name); named != nil {
			resolvedLogger = named
		}
	}
	return resolvedProvider, glog.Ensure(resolvedLogger)
}

// WithFields attaches fields when logger supports structured fields and
// returns it unchanged otherwise.
func WithFields(logger glog.Logger, fields map[string]any) glog.Logger {
	logger = glog.Ensure(logger)
	if len(fields) == 0 {
		return logger
	}
	if fieldsLogger, ok := logger.(glog.FieldsLogger); ok {
		return fieldsLogger.WithFields(fields)
	}
	return logger
}

// ResolveForWorker resolves the component logger and bridges it to the
// go-job logger contracts used by queue workers.
func ResolveForWorker(
	component string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(component, provider, logger)
	var jobProvider job.LoggerProvider
	if resolvedProvider != nil {
		jobProvider = job.GoLoggerProvider(resolvedProvider)
	}
	return resolvedLogger, jobProvider, job.GoLogger(resolvedLogger)
}
