package protocol

import "unicode/utf8"

// DefaultMaxPayload is the notification payload that fits the default
// ATT MTU of 23 bytes (3 bytes of ATT header).
const DefaultMaxPayload = 20

// ChunkPayload splits data into chunks of at most maxBytes, one per
// notification frame. It prefers splitting after a space or newline and
// never splits in the middle of a UTF-8 sequence, so joining the chunks
// yields data exactly. Returns nil for empty data.
func ChunkPayload(data []byte, maxBytes int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayload
	}

	var chunks [][]byte
	for len(data) > 0 {
		if len(data) <= maxBytes {
			chunks = append(chunks, data)
			break
		}

		// Walk back to the start of a rune.
		split := maxBytes
		for split > 0 && !utf8.RuneStart(data[split]) {
			split--
		}
		if split == 0 {
			// A rune longer than maxBytes, or invalid UTF-8: cut at the limit.
			split = maxBytes
		}

		// Prefer the last word boundary before split.
		for i := split; i > 0; i-- {
			if data[i-1] == ' ' || data[i-1] == '\n' {
				split = i
				break
			}
		}

		chunks = append(chunks, data[:split])
		data = data[split:]
	}
	return chunks
}
