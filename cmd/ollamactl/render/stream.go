package render

import (
	"errors"
	"fmt"
	"io"

	"github.com/papercomputeco/ollama-go/pkg/ollama"
	"github.com/papercomputeco/ollama-go/pkg/stream"
)

// ErrIncomplete is returned when a stream ends without a final record.
var ErrIncomplete = errors.New("stream ended before the server finished")

// Stream copies the fragments of dec to w as they arrive and returns the
// final record. With markdown enabled nothing is written until the answer is
// complete. observe, if set, sees every record including the final one. An
// in-band server error is returned as *ollama.ServerError.
func Stream[R stream.Record](r *Renderer, w io.Writer, dec *stream.Decoder[R], observe func(R)) (*stream.Done[R], error) {
	defer dec.Close()

	for ev, err := range dec.All() {
		if err != nil {
			return nil, err
		}

		switch e := ev.(type) {
		case stream.Chunk[R]:
			if observe != nil {
				observe(e.Record)
			}
			if !r.markdown {
				fmt.Fprint(w, e.Text)
			}

		case stream.Done[R]:
			if observe != nil {
				observe(e.Record)
			}
			if r.markdown {
				out, err := r.Answer(e.Content)
				if err != nil {
					return nil, err
				}
				fmt.Fprint(w, out)
			} else {
				fmt.Fprintln(w, e.Record.Fragment())
			}
			return &e, nil

		case stream.ErrorEvent:
			fmt.Fprintln(w)
			return nil, &ollama.ServerError{Message: e.Message}
		}
	}

	fmt.Fprintln(w)
	return nil, ErrIncomplete
}
