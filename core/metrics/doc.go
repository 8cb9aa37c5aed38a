// Package metrics defines the logging sink used by the market. Every sink
// accepts named scalar values through LogValue; richer sinks additionally
// implement the recorder interfaces, which callers discover with type
// assertions. Sinks are built from configuration through a factory registry;
// several configured sinks are combined into a MultiSink.
package metrics
