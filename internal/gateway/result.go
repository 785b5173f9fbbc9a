package gateway

// Source records which path produced a Result.
type Source string

const (
	SourceLive       Source = "live"
	SourceLiveFailed Source = "live_failed"
	SourceFallback   Source = "fallback"
)

// Result carries an operation's value together with the path that produced
// it. Err holds the live failure when Source is SourceFallback, or a shape
// warning when a live payload could only be partially understood.
type Result[T any] struct {
	Value  T
	Source Source
	Err    error
}

func (r Result[T]) Live() bool { return r.Source == SourceLive }

func (r Result[T]) Fallback() bool { return r.Source == SourceFallback }
