package recorder

// NoopRecorder is a no-op implementation used when no action log is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordAction(_ *ActionEvent) error { return nil }
func (n *NoopRecorder) Close() error                      { return nil }
