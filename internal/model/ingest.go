package model

// IngestEnvelope carries one raw text-stream line with the name of the input it came from.
// It is the transport contract between text sources and the line processor.
type IngestEnvelope struct {
	Source string
	Line   string
}
