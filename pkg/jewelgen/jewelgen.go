// Package jewelgen generates marketing imagery and copy for jewelry product
// photos. It scans a filesystem inbox, runs one job per photo through a set
// of per-artifact generation binaries, and tracks versioned results in a
// per-job meta.json.
package jewelgen

// Artifact types a job can produce.
const (
	ArtifactDesc    = "desc"
	ArtifactStyled  = "styled"
	ArtifactStyled2 = "styled2"
	ArtifactStyled3 = "styled3"
	ArtifactWear    = "wear"
	ArtifactCloseup = "closeup"
)

// StandardTypes are the jewelry types that get wear and closeup shots.
// Everything else gets extra styled variations instead.
var StandardTypes = []string{"ring", "necklace", "earring", "bracelet", "anklet"}

// Output dimensions.
const (
	MaxInputSide = 2048 // input images are downscaled to fit this
	OutSquare    = 1024 // 1:1 output size
	Out2x3W      = 1024 // 2:3 output width
	Out2x3H      = 1536 // 2:3 output height
)

// Job lifecycle states recorded in meta.json.
const (
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
)

// IsStandardType reports whether t gets the full wear/closeup artifact set.
func IsStandardType(t string) bool {
	for _, s := range StandardTypes {
		if s == t {
			return true
		}
	}
	return false
}

// ArtifactsFor returns the artifact sequence generated for a jewelry type.
func ArtifactsFor(jewelryType string) []string {
	if IsStandardType(jewelryType) {
		return []string{ArtifactDesc, ArtifactStyled, ArtifactWear, ArtifactCloseup}
	}
	return []string{ArtifactDesc, ArtifactStyled, ArtifactStyled2, ArtifactStyled3}
}
