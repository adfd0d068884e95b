package corpus

import "strings"

// Chunking parameters tuned for scientific abstracts and papers: windows
// large enough to hold a full methods paragraph, with overlap so a finding
// split across a boundary still appears whole in one chunk.
const (
	chunkSizeWords    = 400
	chunkOverlapWords = 50
	minChunkChars     = 100
)

// ChunkText splits text into overlapping word windows. Windows advance by
// chunkSize minus overlap words; fragments of minChunkChars or fewer are
// dropped. Empty or whitespace-only input yields no chunks.
func ChunkText(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	stride := chunkSizeWords - chunkOverlapWords
	var chunks []string
	for start := 0; start < len(words); start += stride {
		end := start + chunkSizeWords
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[start:end], " ")
		if len(chunk) > minChunkChars {
			chunks = append(chunks, chunk)
		}
		if end == len(words) {
			break
		}
	}
	return chunks
}
