// Package facematch turns detected face embeddings into student identities.
// It holds the matching rule shared by the CLI, the web API and the session loop.
package facematch

// Face is one detection: where it is in the frame and its encoding.
type Face struct {
	Box       Box
	Embedding []float32
	Score     float64 // detector confidence, 0 when unknown
}

// Candidate is one enrolled identity in the gallery searched by Match.
type Candidate struct {
	RollNo    string
	Name      string
	Embedding []float32
}

// Result is the outcome of matching one face.
type Result struct {
	Known    bool
	Name     string // UnknownLabel when Known is false
	RollNo   string // empty when Known is false
	Distance float64
}
