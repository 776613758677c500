package proxy

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/papercomputeco/ollama-go/pkg/llm"
	"github.com/papercomputeco/ollama-go/pkg/ollama"
	"github.com/papercomputeco/ollama-go/pkg/stream"
)

// lineWriter writes NDJSON records to the downstream client.
type lineWriter interface {
	WriteRecord(v any) error
}

type ndjsonWriter struct {
	w *bufio.Writer
}

func (n ndjsonWriter) WriteRecord(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := n.w.Write(data); err != nil {
		return err
	}
	if err := n.w.WriteByte('\n'); err != nil {
		return err
	}
	return n.w.Flush()
}

// streamResponse switches the response to NDJSON and runs write once the
// headers are sent.
func (p *Proxy) streamResponse(c *fiber.Ctx, write func(w lineWriter)) error {
	c.Set("Content-Type", "application/x-ndjson")
	c.Set("Transfer-Encoding", "chunked")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		write(ndjsonWriter{w: w})
	}))
	return nil
}

// relay copies records from dec to w until the stream terminates and returns
// the Done event. A decode or transport failure, or an in-band error, is
// reported downstream as an {"error": ...} record and returned. observe sees
// every content and final record. A nil Done with a nil error means the
// upstream body ended without a final record.
func relay[R stream.Record](w lineWriter, dec *stream.Decoder[R], observe func(R)) (*stream.Done[R], error) {
	defer dec.Close()

	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			_ = w.WriteRecord(llm.ErrorResponse{Error: err.Error()})
			return nil, err
		}

		switch e := ev.(type) {
		case stream.Chunk[R]:
			observe(e.Record)
			if err := w.WriteRecord(e.Record); err != nil {
				return nil, fmt.Errorf("write to client: %w", err)
			}

		case stream.Done[R]:
			observe(e.Record)
			if err := w.WriteRecord(e.Record); err != nil {
				return nil, fmt.Errorf("write to client: %w", err)
			}
			return &e, nil

		case stream.ErrorEvent:
			_ = w.WriteRecord(llm.ErrorResponse{Error: e.Message})
			return nil, &ollama.ServerError{Message: e.Message}
		}
	}
}
