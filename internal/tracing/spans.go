package tracing

// Span attribute keys.
const (
	AttrInvocationID = "invocation.id"
	AttrJobName      = "job.name"
	AttrDialect      = "registration.dialect"
	AttrModalities   = "registration.modalities"
	AttrLevels       = "registration.levels"
	AttrExecutable   = "process.executable"
	AttrArgCount     = "process.arg_count"
	AttrExitCode     = "process.exit_code"
	AttrOutputs      = "gate.outputs"
	AttrMissing      = "gate.missing"
	AttrStatus       = "invocation.status"
	AttrStep         = "resample.step"

	AttrErrorMessage = "error.message"
	AttrErrorType    = "error.type"
)

// Span names.
const (
	SpanRegister   = "registration.register"
	SpanInvocation = "invocation.execute"
	SpanProcess    = "process.run"
	SpanResample   = "resample.prepare"
	SpanBatch      = "batch.run"
)

// Span event names.
const (
	EventGateChecked = "gate.checked"
	EventSkipped     = "invocation.skipped"
	EventRecorded    = "ledger.recorded"
)
