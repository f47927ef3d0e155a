package pipeline

import (
	"bytes"
)

const (
	oggPageHeaderLen = 27
	// OpusHead and OpusTags precede the audio packets of every Ogg Opus stream.
	OpusHeaderPackets = 2
)

var oggCapture = []byte("OggS")

// DemuxOpus splits a complete Ogg stream into its packets, dropping the first
// skip packets. It works on a finished buffer only; a page cut short by the
// end of data is an error rather than a partial packet.
func DemuxOpus(data []byte, skip int) ([][]byte, error) {
	var (
		packets [][]byte
		pending bytes.Buffer
	)

	for off := 0; off < len(data); {
		// Resync on the capture pattern; anything between pages is garbage.
		idx := bytes.Index(data[off:], oggCapture)
		if idx < 0 {
			break
		}
		off += idx

		if len(data)-off < oggPageHeaderLen {
			return nil, ErrTruncatedPage
		}
		header := data[off : off+oggPageHeaderLen]
		off += oggPageHeaderLen

		numSegs := int(header[26])
		if len(data)-off < numSegs {
			return nil, ErrTruncatedPage
		}
		segTable := data[off : off+numSegs]
		off += numSegs

		for _, segLen := range segTable {
			l := int(segLen)
			if len(data)-off < l {
				return nil, ErrTruncatedPage
			}
			pending.Write(data[off : off+l])
			off += l

			// A lacing value below 255 terminates the packet.
			if l < 255 {
				if skip > 0 {
					skip--
				} else if pending.Len() > 0 {
					packets = append(packets, bytes.Clone(pending.Bytes()))
				}
				pending.Reset()
			}
		}
	}

	return packets, nil
}
