package pdfrender

// Exported test-only accessors for unexported functions and fields.

// ParsePdfInfoOutputForTest exposes parsePdfInfoOutput.
func ParsePdfInfoOutputForTest(s string) (int, error) { return parsePdfInfoOutput(s) }

// BuildGhostscriptArgsForTest exposes buildGhostscriptArgs.
func BuildGhostscriptArgsForTest(dpi, page int, outPath, pdfPath string) []string {
	return buildGhostscriptArgs(dpi, page, outPath, pdfPath)
}

// ConfigForTest returns a copy of the renderer configuration.
func (renderer *Renderer) ConfigForTest() Options { return renderer.config }

// SetExecutorForTest injects a fake command executor.
func (renderer *Renderer) SetExecutorForTest(exec CommandExecutor) {
	renderer.executor = exec
}
