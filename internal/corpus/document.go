package corpus

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// DocumentMetadata classifies a document for filtered retrieval.
type DocumentMetadata struct {
	EvidenceLevel      string   `json:"evidence_level"`
	DeviationTypes     []string `json:"deviation_types"`
	ExerciseCategories []string `json:"exercise_categories"`
}

// ScientificDocument is one publication in the knowledge corpus.
type ScientificDocument struct {
	Title    string           `json:"title"`
	Authors  string           `json:"authors"`
	Year     int              `json:"year"`
	Journal  string           `json:"journal"`
	DOI      string           `json:"doi"`
	Content  string           `json:"content"`
	Keywords []string         `json:"keywords"`
	Metadata DocumentMetadata `json:"metadata"`
}

// minContentWarn is the content length below which a document is unlikely
// to yield any chunk worth indexing.
const minContentWarn = 500

// Validate checks the fields required for indexing. It returns the first
// hard error and a list of non-fatal warnings.
func (d *ScientificDocument) Validate() (warnings []string, err error) {
	switch {
	case strings.TrimSpace(d.Title) == "":
		return nil, fmt.Errorf("document missing title")
	case strings.TrimSpace(d.Authors) == "":
		return nil, fmt.Errorf("document %q missing authors", d.Title)
	case d.Year == 0:
		return nil, fmt.Errorf("document %q missing year", d.Title)
	case strings.TrimSpace(d.DOI) == "":
		return nil, fmt.Errorf("document %q missing doi", d.Title)
	case strings.TrimSpace(d.Content) == "":
		return nil, fmt.Errorf("document %s missing content", d.DOI)
	case d.Metadata.EvidenceLevel == "":
		return nil, fmt.Errorf("document %s missing evidence_level", d.DOI)
	case len(d.Metadata.DeviationTypes) == 0:
		return nil, fmt.Errorf("document %s missing deviation_types", d.DOI)
	case len(d.Metadata.ExerciseCategories) == 0:
		return nil, fmt.Errorf("document %s missing exercise_categories", d.DOI)
	}

	if len(d.Content) < minContentWarn {
		warnings = append(warnings, fmt.Sprintf("document %s content is very short (%d chars)", d.DOI, len(d.Content)))
	}
	return warnings, nil
}

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// pointIDNamespace makes chunk point ids deterministic across runs, so
// re-ingesting the same document overwrites its points instead of
// duplicating them.
var pointIDNamespace = uuid.MustParse("8e7a1f9c-3b52-4d6e-9a0f-2c481d5b7e63")

// ChunkPointID derives the stable point id for one chunk of a document.
// The id is a UUIDv5 of the sanitized DOI plus the chunk index.
func ChunkPointID(doi string, chunkIndex int) string {
	sanitized := nonAlphanumeric.ReplaceAllString(doi, "_")
	name := sanitized + "_chunk_" + strconv.Itoa(chunkIndex)
	return uuid.NewSHA1(pointIDNamespace, []byte(name)).String()
}
