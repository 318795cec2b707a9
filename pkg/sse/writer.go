package sse

import (
	"io"

	gosse "github.com/tmaxmax/go-sse"
)

// WriteData writes a single data-only frame ("data: <data>\n\n") to w.
// Multi-line data is split across several data fields so that a reader
// rejoins it byte for byte.
func WriteData(w io.Writer, data string) error {
	msg := gosse.Message{}
	msg.AppendData(data)

	_, err := msg.WriteTo(w)
	return err
}
